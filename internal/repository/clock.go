package repository

import "time"

// Clock returns the current time. Repositories write timestamps themselves so
// the SQL stays portable between MySQL and SQLite.
type Clock func() time.Time

// SystemClock is UTC wall time truncated to the precision DATETIME(6) keeps.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
