package audit

import "context"

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 500
)

// Query narrows a read of stored events. A zero Limit means DefaultQueryLimit.
type Query struct {
	UserID string
	Limit  int
}

// Normalize clamps Limit into [1, MaxQueryLimit].
func (q Query) Normalize() Query {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		q.Limit = MaxQueryLimit
	}
	return q
}

// Record is a stored event. User is set while the account still exists.
type Record struct {
	ID int64 `json:"id"`
	Event
	User *RecordUser `json:"user,omitempty"`
}

// RecordUser is the account summary attached to a Record.
type RecordUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phoneNumber,omitempty"`
}

// Reader lists stored events, newest first.
type Reader interface {
	List(ctx context.Context, q Query) ([]Record, error)
}
