package testfixtures

import (
	"time"

	"github.com/benbjohnson/clock"
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// NewClock returns a mock clock set to start. When start is the zero value,
// ReferenceTime is used.
func NewClock(start time.Time) *clock.Mock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	mock := clock.NewMock()
	mock.Add(start.Sub(mock.Now()))
	return mock
}
