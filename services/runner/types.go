package runner

import "github.com/google/uuid"

type runLifecycleEvent struct {
	RunID    uuid.UUID `json:"run_id"`
	Pipeline string    `json:"pipeline"`
	Ref      string    `json:"ref"`
	Status   string    `json:"status"`
}
