package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrEthical07/falcomAuth/internal/audit"
	"go.uber.org/zap"
)

const insertActivity = `
INSERT INTO activity_logs (event_type, user_id, ip, request_id, success, error, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const listActivities = `
SELECT l.id, l.event_type, l.user_id, l.ip, l.request_id, l.success, l.error, l.metadata, l.occurred_at,
       a.first_name, a.last_name, a.email, a.phone
FROM activity_logs l
LEFT JOIN accounts a ON a.id = l.user_id
WHERE ($1 = '' OR l.user_id = $1)
ORDER BY l.occurred_at DESC, l.id DESC
LIMIT $2`

// ActivityLog writes audit events to the activity_logs table and reads them
// back for the admin feed.
type ActivityLog struct {
	db      *sql.DB
	timeout time.Duration
	logger  *zap.Logger
}

func NewActivityLog(db *sql.DB, logger *zap.Logger) *ActivityLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityLog{db: db, timeout: 2 * time.Second, logger: logger}
}

func (s *ActivityLog) Emit(ctx context.Context, event audit.Event) {
	var meta []byte
	if len(event.Metadata) > 0 {
		meta, _ = json.Marshal(event.Metadata)
	}
	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertActivity,
		event.EventType, nullString(event.UserID), nullString(event.IP), nullString(event.RequestID),
		event.Success, nullString(event.Error), meta, at.UTC(),
	)
	if err != nil {
		s.logger.Error("failed to write activity log",
			zap.String("event", event.EventType),
			zap.Error(err),
		)
	}
}

// List returns stored events newest first, joined with the owning account.
func (s *ActivityLog) List(ctx context.Context, q audit.Query) ([]audit.Record, error) {
	q = q.Normalize()
	rows, err := s.db.QueryContext(ctx, listActivities, q.UserID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	return out, nil
}

func scanActivity(row rowScanner) (audit.Record, error) {
	var (
		rec                            audit.Record
		userID, ip, requestID, errCode sql.NullString
		first, last, email, phone      sql.NullString
		meta                           []byte
	)
	err := row.Scan(
		&rec.ID, &rec.EventType, &userID, &ip, &requestID, &rec.Success, &errCode, &meta, &rec.Timestamp,
		&first, &last, &email, &phone,
	)
	if err != nil {
		return audit.Record{}, err
	}

	rec.UserID = userID.String
	rec.IP = ip.String
	rec.RequestID = requestID.String
	rec.Error = errCode.String
	rec.Timestamp = rec.Timestamp.UTC()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return audit.Record{}, err
		}
	}
	if email.Valid {
		rec.User = &audit.RecordUser{
			FirstName: first.String,
			LastName:  last.String,
			Email:     email.String,
			Phone:     phone.String,
		}
	}
	return rec, nil
}
