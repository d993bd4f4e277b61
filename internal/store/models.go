package store

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a request record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Record is the persisted state of one query.
type Record struct {
	QueryID     string          `json:"query_id"`
	Query       string          `json:"query"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Namespace partitions the memoization store.
type Namespace string

const (
	NamespacePlans   Namespace = "plans"
	NamespaceActions Namespace = "actions"
)

// ParseNamespace maps a user supplied name onto a Namespace.
func ParseNamespace(s string) (Namespace, bool) {
	switch Namespace(s) {
	case NamespacePlans, NamespaceActions:
		return Namespace(s), true
	}
	return "", false
}
