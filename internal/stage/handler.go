package stage

import (
	"context"

	"storycut/internal/media"
)

// Handler describes the contract the workflow manager needs from each job
// kind. Prepare performs the idempotency check and cheap validation;
// Execute does the work. A Prepare that returns ErrAlreadyDone
// short-circuits the job to completed without running Execute.
type Handler interface {
	Kind() media.JobKind
	Prepare(context.Context, *media.Job) error
	Execute(context.Context, *media.Job) error
	HealthCheck(context.Context) Health
}

// Preconditions lets a handler declare the job kinds that must have
// completed on the same media before it can run. The workflow defers
// claimable jobs whose preconditions are unmet.
type Preconditions interface {
	Requires() []media.JobKind
}
