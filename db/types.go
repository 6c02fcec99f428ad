package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/MODJayden/jobcue/domain"
)

// queueValue is the ordered queue as stored in the kv table: a JSON array of entries.
// It implements the sql.Scanner and driver.Valuer interfaces to handle database serialization.
type queueValue []domain.QueuedRequest

// Scan implements the sql.Scanner interface, allowing the queue to be read from the database.
func (q *queueValue) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*q = queueValue{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}

	entries := queueValue{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decoding queue : %w", err)
	}
	*q = entries
	return nil
}

// Value implements the driver.Valuer interface, allowing the queue to be written to the database.
// An empty queue is stored as an empty JSON array, never as null.
func (q queueValue) Value() (driver.Value, error) {
	if len(q) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal([]domain.QueuedRequest(q))
	if err != nil {
		return nil, fmt.Errorf("encoding queue : %w", err)
	}
	return string(encoded), nil
}
