package sqlite

import (
	"context"

	"github.com/tachyon-beep/filigree/internal/storage"
	"github.com/tachyon-beep/filigree/internal/types"
)

// runBatch applies fn to each id independently, capturing per-item
// failures into the result rather than aborting the whole batch — one bad
// id in a batch of fifty must not roll back the other forty-nine.
func runBatch(ids []string, fn func(id string) error) *storage.BatchResult {
	result := &storage.BatchResult{}
	for _, id := range ids {
		if err := fn(id); err != nil {
			result.Errors = append(result.Errors, types.BatchError{ID: id, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

func (s *Store) BatchUpdate(ctx context.Context, ids []string, p storage.UpdateIssueParams) (*storage.BatchResult, error) {
	return runBatch(ids, func(id string) error {
		_, err := s.UpdateIssue(ctx, id, p)
		return err
	}), nil
}

func (s *Store) BatchClose(ctx context.Context, ids []string, p storage.CloseIssueParams) (*storage.BatchResult, error) {
	return runBatch(ids, func(id string) error {
		_, err := s.CloseIssue(ctx, id, p)
		return err
	}), nil
}

func (s *Store) BatchAddLabel(ctx context.Context, ids []string, label, actor string) (*storage.BatchResult, error) {
	return runBatch(ids, func(id string) error {
		return s.AddLabel(ctx, id, label, actor)
	}), nil
}

func (s *Store) BatchAddComment(ctx context.Context, ids []string, author, text string) (*storage.BatchResult, error) {
	return runBatch(ids, func(id string) error {
		_, err := s.AddComment(ctx, id, author, text)
		return err
	}), nil
}
