// Package filesafety implements the FileSafetyDelegate collaborator
// from spec §3: for NetworkAction jobs that reference ephemeral files
// (an upload payload sitting in a tmp dir, say), copy those files into
// a controlled directory before the job is persisted to the offline
// queue, so a later drain can still read them after the original path
// is gone. Grounded on the teacher's internal/db's pattern of a small
// host-facing helper with no framework dependency of its own.
package filesafety

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Delegate rewrites a set of referenced file paths into safe copies,
// and removes those copies once the offline entry they belong to is
// done with (succeeded, removed, or poisoned).
type Delegate interface {
	// Secure copies each path in refs into the delegate's controlled
	// directory and returns the new paths, keyed by the original path.
	Secure(refs []string) (safePaths map[string]string, err error)
	// Cleanup removes the safe copies previously returned for jobID.
	Cleanup(jobID string) error
}

// LocalDisk is a Delegate that copies files into a dedicated
// subdirectory per job under baseDir.
type LocalDisk struct {
	baseDir string
}

func NewLocalDisk(baseDir string) *LocalDisk {
	return &LocalDisk{baseDir: baseDir}
}

// SecureForJob copies refs into baseDir/jobID/ and returns the mapping
// from original path to safe path. Unlike Secure, this variant is keyed
// by the job up front so Cleanup can later find the directory without
// the caller tracking individual file paths.
func (d *LocalDisk) SecureForJob(jobID string, refs []string) (map[string]string, error) {
	dir := filepath.Join(d.baseDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(refs))
	for _, ref := range refs {
		dst := filepath.Join(dir, uuid.NewString()+"-"+filepath.Base(ref))
		if err := copyFile(ref, dst); err != nil {
			return nil, err
		}
		out[ref] = dst
	}
	return out, nil
}

// Secure satisfies Delegate without a job identity; used by callers
// that manage their own cleanup keying.
func (d *LocalDisk) Secure(refs []string) (map[string]string, error) {
	return d.SecureForJob(uuid.NewString(), refs)
}

func (d *LocalDisk) Cleanup(jobID string) error {
	dir := filepath.Join(d.baseDir, jobID)
	err := os.RemoveAll(dir)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
