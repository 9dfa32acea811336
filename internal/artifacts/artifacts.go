// Package artifacts stores per-step logs and metrics snapshots. This is
// observability plumbing, not control flow: orchestrator.Orchestrator
// writes through Store after each step finishes, success or failure, and
// swallows write errors the same way the teacher's
// generation_worker.go doesn't fail a job over a marker update.
package artifacts

import (
	"context"
	"io"
)

// Store persists and retrieves opaque blobs by key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
