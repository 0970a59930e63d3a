package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/example/schema-migrator/internal/version"
)

const filesystemScheme = "filesystem:"

// ScannerOptions configures the file naming convention and checksums.
type ScannerOptions struct {
	Prefix    string // defaults to "V"
	Separator string // defaults to "__"
	Suffix    string // defaults to ".sql"

	// StrictNaming turns malformed migration names into errors instead of
	// warnings.
	StrictNaming bool

	Checksum ChecksumAlgorithm
	Logger   *slog.Logger
}

// fileScannerImpl implements the FileScanner interface
type fileScannerImpl struct {
	opts   ScannerOptions
	logger *slog.Logger
}

// NewFileScanner creates a new FileScanner implementation
func NewFileScanner(opts ScannerOptions) FileScanner {
	if opts.Prefix == "" {
		opts.Prefix = "V"
	}
	if opts.Separator == "" {
		opts.Separator = "__"
	}
	if opts.Suffix == "" {
		opts.Suffix = ".sql"
	}
	if opts.Checksum == "" {
		opts.Checksum = SHA256
	}
	return &fileScannerImpl{
		opts:   opts,
		logger: defaultLogger(opts.Logger),
	}
}

// ParseLocation resolves "filesystem:<dir>" or a bare directory path to a
// Location backed by the operating system.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	dir := raw
	if strings.HasPrefix(raw, filesystemScheme) {
		dir = strings.TrimPrefix(raw, filesystemScheme)
	} else if i := strings.Index(raw, ":"); i > 1 {
		// Windows drive letters are a single character before the colon.
		return Location{}, fmt.Errorf("unsupported location scheme %q", raw[:i+1])
	}
	if dir == "" {
		return Location{}, errors.New("empty migration location")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return Location{}, NewFileSystemError(dir, "open location", err)
	}
	if !info.IsDir() {
		return Location{}, NewFileSystemError(dir, "open location", errors.New("not a directory"))
	}
	return Location{Name: raw, FS: os.DirFS(dir)}, nil
}

// ParseLocations resolves a list of locations.
func ParseLocations(raw []string) ([]Location, error) {
	locations := make([]Location, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		loc, err := ParseLocation(r)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	if len(locations) == 0 {
		return nil, errors.New("no migration locations configured")
	}
	return locations, nil
}

// ScanMigrations walks every location recursively and merges the migrations
// into one set ordered by version.
func (s *fileScannerImpl) ScanMigrations(locations []Location) (*ScanResult, error) {
	result := &ScanResult{}
	seen := make(map[string]Migration)

	for _, loc := range locations {
		err := fs.WalkDir(loc.FS, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return NewFileSystemError(path.Join(loc.Name, p), "scan", err)
			}
			if d.IsDir() {
				return nil
			}

			if !s.isCandidate(d.Name()) {
				s.logger.Debug("ignoring file", "location", loc.Name, "script", p)
				result.Ignored = append(result.Ignored, IgnoredFile{Location: loc.Name, Script: p, Reason: "not a migration file"})
				return nil
			}

			if err := s.ValidateFileName(d.Name()); err != nil {
				if s.opts.StrictNaming {
					return &ParseError{Location: loc.Name, Script: p, Err: err}
				}
				s.logger.Warn("ignoring malformed migration file", "location", loc.Name, "script", p, "error", err)
				result.Ignored = append(result.Ignored, IgnoredFile{Location: loc.Name, Script: p, Reason: err.Error()})
				return nil
			}

			m, err := s.ParseMigrationFile(loc, p)
			if err != nil {
				return err
			}

			key := m.Version.String()
			if existing, ok := seen[key]; ok {
				return &ParseError{
					Location: loc.Name,
					Script:   p,
					Err: fmt.Errorf("%w: version %s found in both %s and %s",
						ErrDuplicateVersion, key, joinScript(existing.Location, existing.Script), joinScript(loc.Name, p)),
				}
			}
			seen[key] = *m
			result.Migrations = append(result.Migrations, *m)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(result.Migrations, func(i, j int) bool {
		return result.Migrations[i].Version.Less(result.Migrations[j].Version)
	})

	s.logger.Debug("scan complete", "migrations", len(result.Migrations), "ignored", len(result.Ignored))
	return result, nil
}

// ValidateFileName checks if migration file follows naming convention
func (s *fileScannerImpl) ValidateFileName(filename string) error {
	_, _, err := s.parseName(filename)
	return err
}

// ParseMigrationFile reads and parses a single migration file
func (s *fileScannerImpl) ParseMigrationFile(location Location, p string) (*Migration, error) {
	v, description, err := s.parseName(path.Base(p))
	if err != nil {
		return nil, &ParseError{Location: location.Name, Script: p, Err: err}
	}

	body, err := fs.ReadFile(location.FS, p)
	if err != nil {
		return nil, NewFileSystemError(joinScript(location.Name, p), "read file", err)
	}

	if len(SplitStatements(string(body), lenientSplit)) == 0 {
		return nil, &ParseError{
			Location: location.Name,
			Script:   p,
			Err:      fmt.Errorf("%w: no SQL statements found", ErrInvalidMigrationFile),
		}
	}

	checksum, err := Checksum(s.opts.Checksum, body)
	if err != nil {
		return nil, err
	}

	return &Migration{
		Version:     v,
		Description: description,
		Script:      p,
		Location:    location.Name,
		Body:        string(body),
		Checksum:    checksum,
	}, nil
}

func (s *fileScannerImpl) isCandidate(name string) bool {
	return strings.HasPrefix(name, s.opts.Prefix) && strings.HasSuffix(name, s.opts.Suffix)
}

func (s *fileScannerImpl) parseName(filename string) (version.Version, string, error) {
	pattern := s.opts.Prefix + "{version}" + s.opts.Separator + "{description}" + s.opts.Suffix
	if !s.isCandidate(filename) {
		return version.Version{}, "", fmt.Errorf("%w: %q does not match %s", ErrInvalidMigrationFile, filename, pattern)
	}

	stem := strings.TrimSuffix(strings.TrimPrefix(filename, s.opts.Prefix), s.opts.Suffix)
	i := strings.Index(stem, s.opts.Separator)
	if i < 0 {
		return version.Version{}, "", fmt.Errorf("%w: %q has no %q separator", ErrInvalidMigrationFile, filename, s.opts.Separator)
	}

	v, err := version.Parse(stem[:i])
	if err != nil {
		return version.Version{}, "", fmt.Errorf("%q: %w", filename, err)
	}

	description := strings.TrimSpace(strings.ReplaceAll(stem[i+len(s.opts.Separator):], "_", " "))
	if description == "" {
		return version.Version{}, "", fmt.Errorf("%w: %q has an empty description", ErrInvalidMigrationFile, filename)
	}
	return v, description, nil
}
