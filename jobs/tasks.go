package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSweep is the task type for the catalog consistency sweep.
	TaskCatalogSweep = "catalog:sweep"
)

// CatalogSweepPayload parameterises a sweep run.
type CatalogSweepPayload struct {
	// DryRun reports stale references without republishing.
	DryRun bool `json:"dry_run"`
}

// NewCatalogSweepTask constructs an Asynq task.
func NewCatalogSweepTask(payload CatalogSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSweep, data), nil
}
