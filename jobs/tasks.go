package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/printhub/printhub/internal/inventory"
)

const (
	// QueueDefault carries event-driven tasks enqueued by the API.
	QueueDefault = "default"
	// QueueMaintenance carries scheduled housekeeping tasks.
	QueueMaintenance = "maintenance"
	// TaskResolutionMiss records an inventory reference that matched no stock item.
	TaskResolutionMiss = "inventory:resolution-miss"
	// TaskDeferredSweep reports cheque and online payments left pending too long.
	TaskDeferredSweep = "settlement:deferred-sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// ResolutionMissPayload mirrors inventory.Miss on the wire.
type ResolutionMissPayload struct {
	ProductRef string    `json:"product_ref"`
	Branch     string    `json:"branch"`
	Quantity   string    `json:"quantity"`
	Tried      []string  `json:"tried"`
	TaskID     string    `json:"task_id,omitempty"`
	At         time.Time `json:"at"`
}

// NewResolutionMissTask constructs an Asynq task for a resolution miss.
func NewResolutionMissTask(miss inventory.Miss) (*asynq.Task, error) {
	body, err := json.Marshal(ResolutionMissPayload{
		ProductRef: miss.ProductRef,
		Branch:     miss.Branch,
		Quantity:   miss.Quantity.String(),
		Tried:      miss.Tried,
		TaskID:     miss.TaskID,
		At:         miss.At,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskResolutionMiss, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// DeferredSweepPayload optionally narrows the sweep to one branch.
type DeferredSweepPayload struct {
	Branch string `json:"branch,omitempty"`
}

// NewDeferredSweepTask constructs the periodic sweep task.
func NewDeferredSweepTask(branch string) (*asynq.Task, error) {
	body, err := json.Marshal(DeferredSweepPayload{Branch: branch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeferredSweep, body, asynq.Queue(QueueMaintenance)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueMaintenance)), nil
}
