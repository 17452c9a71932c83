package executor

import (
	"github.com/geocoder89/jobrt/internal/event"
	"github.com/geocoder89/jobrt/internal/job"
)

// Observer is the process-wide hook collaborator from spec §4.2/§6.
// Every method may be called from the goroutine driving a job's
// lifecycle; implementations must not block meaningfully and must not
// panic — the engine recovers panics from Observer calls but a
// panicking observer is still a bug worth finding in tests.
type Observer interface {
	OnJobStart(j job.Job)
	OnJobSuccess(j job.Job, result any, source event.Source)
	OnJobError(j job.Job, err error, stack string)
	OnEvent(e event.Event)
}

// NoopObserver implements Observer with no-ops, the default when no
// observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnJobStart(job.Job)                          {}
func (NoopObserver) OnJobSuccess(job.Job, any, event.Source)      {}
func (NoopObserver) OnJobError(job.Job, error, string)            {}
func (NoopObserver) OnEvent(event.Event)                          {}

func invokeObserver(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
