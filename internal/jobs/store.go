package jobs

import "context"

// Store persists the pending list and the file results so a restarted process
// resumes where it stopped.
type Store interface {
	LoadQueue(ctx context.Context) ([]string, error)
	SaveQueue(ctx context.Context, paths []string) error
	RecordResult(ctx context.Context, result *FileResult) error
}
