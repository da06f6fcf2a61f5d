package pgstore

import (
	"context"
	"fmt"
)

// CreateGroup inserts a group row and returns its generated id. Group
// ids come from the identity column so they are unique and monotonic
// across restarts.
func (s *Store) CreateGroup(ctx context.Context, name string, creatorID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO "groups" (name, creator_id) VALUES ($1, $2) RETURNING id`,
		name, creatorID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting group %q: %w", name, err)
	}

	s.logger.Info("created group", "group_id", id, "name", name, "creator", creatorID)
	return id, nil
}

// GroupExists reports whether a group row exists.
func (s *Store) GroupExists(ctx context.Context, groupID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM "groups" WHERE id = $1)`, groupID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking group %d: %w", groupID, err)
	}
	return exists, nil
}
