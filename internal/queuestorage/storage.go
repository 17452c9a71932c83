// Package queuestorage implements the NetworkQueueStorage collaborator
// from spec §6 and the OfflineQueueEntry persisted shape from spec §3:
// an ordered mapping id -> {payload_bytes, retry_count, created_at_ms,
// status}. This is the only state the core persists (spec §6).
package queuestorage

import "time"

// Status mirrors the OfflineQueueEntry.status enum from spec §3.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPoisoned   Status = "poisoned"
)

// Entry is the persisted shape of one offline-queued job.
type Entry struct {
	JobID       string
	JobType     string
	Payload     []byte
	RetryCount  int
	CreatedAt   time.Time
	Status      Status
	LastError   string
}

// Patch describes a partial update to an existing Entry; nil fields are
// left unchanged.
type Patch struct {
	RetryCount *int
	Status     *Status
	LastError  *string
}

// Storage is the external collaborator from spec §6: a durable map of
// queued offline jobs. Implementations must be safe under the host's
// concurrency assumptions (spec §5); the core serializes calls where
// required via OfflineQueueManager's own locking.
type Storage interface {
	Save(entry Entry) error
	Get(id string) (Entry, bool, error)
	GetAll() ([]Entry, error)
	Update(id string, patch Patch) error
	Remove(id string) error
	Clear() error
}
