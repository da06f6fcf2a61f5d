package pgstore

import (
	"context"
	"fmt"
)

// EnsureFriendship inserts an accepted friendship row for the pair,
// smaller id first. Re-archiving an existing pair is a no-op, which
// keeps the archive pass idempotent. A self-pair would trip the table's
// ordering constraint, so it is dropped here.
func (s *Store) EnsureFriendship(ctx context.Context, a, b int64) error {
	if a == b {
		return nil
	}
	if a > b {
		a, b = b, a
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO user_friends (user_id1, user_id2, status)
		 VALUES ($1, $2, 'accepted')
		 ON CONFLICT (user_id1, user_id2) DO NOTHING`,
		a, b); err != nil {
		return fmt.Errorf("archiving friendship %d/%d: %w", a, b, err)
	}
	return nil
}
