package executor

import "context"

// Progress is the payload delivered on a handle's progress stream and
// mirrored as a JobProgress bus event, per spec §4.2.
type Progress struct {
	Value   float64
	Message string
}

type progressKey struct{}

type reporter func(value float64, message string)

// ReportProgress is called by Work implementations to report progress;
// it is a no-op if ctx was not produced by the engine (e.g. in a unit
// test calling Work directly), so Work functions don't need a special
// case for that.
func ReportProgress(ctx context.Context, value float64, message string) {
	if fn, ok := ctx.Value(progressKey{}).(reporter); ok {
		fn(value, message)
	}
}

func withReporter(ctx context.Context, fn reporter) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}
