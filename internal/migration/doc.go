// Package migration discovers, plans, applies and validates versioned SQL
// migrations against MySQL, PostgreSQL and SQLite databases.
//
// Migration files live in one or more locations and follow the naming
// convention V{version}__{description}.sql (e.g. "V1__create_users.sql",
// "V2.1__add_email_index.sql"). Versions compare numerically segment by
// segment.
//
// Every run is recorded in an append-only schema history table inside the
// target database (see package history). Each migration is applied in its
// own transaction together with its history entry; a failure rolls the
// migration back, records a failed entry and halts the run.
//
// Writers (migrate, repair, baseline) hold the migration lock for the whole
// operation. Readers (info, validate) never lock.
//
// Example usage:
//
//	locations, err := migration.ParseLocations([]string{"filesystem:db/migrations"})
//	if err != nil {
//		return err
//	}
//	manager := migration.NewManager(db, migration.Options{Locations: locations})
//	if _, err := manager.Migrate(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
