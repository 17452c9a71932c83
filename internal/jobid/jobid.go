// Package jobid generates the identifiers used for Job and Event values.
//
// Grounded on the teacher's internal/domain/job.New and internal/jobs.NewJob,
// which stamp a fresh google/uuid string on every value. This runtime needs
// ids that are sortable and carry a type hint for diagnostics, so a
// monotonic-time + type-hint prefix is added in front of a short uuid
// suffix rather than using a bare uuid.
package jobid

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// seq disambiguates ids minted within the same nanosecond.
var seq atomic.Uint64

// New returns an id of the form "<typeHint>-<unixNano>-<seq>-<uuidSuffix>".
// typeHint is trimmed, lowercased and has each space replaced by an
// underscore (runs are not collapsed, tabs and newlines are not replaced);
// an empty hint is allowed.
func New(typeHint string) string {
	hint := sanitizeHint(typeHint)
	n := seq.Add(1)
	suffix := uuid.NewString()[:8]

	if hint == "" {
		return fmt.Sprintf("%d-%d-%s", time.Now().UnixNano(), n, suffix)
	}
	return fmt.Sprintf("%s-%d-%d-%s", hint, time.Now().UnixNano(), n, suffix)
}

func sanitizeHint(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
