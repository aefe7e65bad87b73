package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry       Entry
		status      string
		owner       sql.NullString
		current     sql.NullString
		failed      sql.NullString
		errMessage  sql.NullString
		errCode     sql.NullString
		resultKey   sql.NullString
		filename    sql.NullString
		startedRaw  string
		endedRaw    sql.NullString
		resumedFrom sql.NullString
	)
	if err := row.Scan(
		&entry.ID, &owner, &status, &current, &failed, &errMessage, &errCode,
		&resultKey, &entry.Progress, &filename, &startedRaw, &endedRaw, &resumedFrom,
	); err != nil {
		return Entry{}, err
	}
	entry.Owner = owner.String
	entry.Status = status
	entry.CurrentStage = current.String
	entry.FailedStage = failed.String
	entry.Error = errMessage.String
	entry.ErrorCode = errCode.String
	entry.ResultKey = resultKey.String
	entry.Filename = filename.String
	entry.StartedAt = parseTime(startedRaw)
	if endedRaw.Valid {
		if t := parseTime(endedRaw.String); !t.IsZero() {
			entry.EndedAt = &t
		}
	}
	entry.ResumedFrom = resumedFrom.String
	return entry, nil
}
