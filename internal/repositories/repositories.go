package repositories

import (
	"database/sql"
	"fmt"
	"time"
)

// dbTime normalizes a timestamp before it is written or compared.
//
// Times are stored in UTC at second precision so the driver's text encoding sorts chronologically.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// expectOne reports notFound when result changed no rows.
func expectOne(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
