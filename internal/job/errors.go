package job

import "errors"

// Grounded on the teacher's internal/jobs/errors.go sentinel-error style.
var (
	ErrInvalidJobType = errors.New("invalid job type")
	ErrNotReversible  = errors.New("job does not implement ReversibleJob")
	ErrNotNetworkJob  = errors.New("job does not implement NetworkAction")
)
