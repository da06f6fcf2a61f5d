package pgstore

import (
	"context"
	"fmt"

	"github.com/infodancer/chatd/internal/chat"
)

// InsertPrivateMessages writes a batch of archived private messages in
// one transaction. Recalled messages are stored with their replacement
// content, matching what the hot tier serves.
func (s *Store) InsertPrivateMessages(ctx context.Context, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO private_messages (message_id, from_user_id, to_user_id, content, timestamp, message_type)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.From, m.To, m.Content, m.Timestamp, m.Kind); err != nil {
			return fmt.Errorf("inserting private message: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// InsertGroupMessages writes a batch of archived group messages in one
// transaction.
func (s *Store) InsertGroupMessages(ctx context.Context, groupID int64, msgs []chat.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range msgs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO group_messages (message_id, group_id, from_user_id, content, timestamp, message_type)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, groupID, m.From, m.Content, m.Timestamp, m.Kind); err != nil {
			return fmt.Errorf("inserting group message: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// PrivateHistory returns archived messages between two users, most
// recent first. The hot-tier message id rides along so history reads
// can match rows still present in the stream.
func (s *Store) PrivateHistory(ctx context.Context, a, b int64, count, offset int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, from_user_id, to_user_id, content, timestamp, message_type
		 FROM private_messages
		 WHERE (from_user_id = $1 AND to_user_id = $2)
		    OR (from_user_id = $2 AND to_user_id = $1)
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		a, b, count, offset)
	if err != nil {
		return nil, fmt.Errorf("querying private history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Content, &m.Timestamp, &m.Kind); err != nil {
			return nil, fmt.Errorf("scanning private history row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying private history: %w", err)
	}
	return msgs, nil
}

// GroupHistory returns archived messages for a group, most recent
// first.
func (s *Store) GroupHistory(ctx context.Context, groupID int64, count, offset int) ([]chat.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, group_id, from_user_id, content, timestamp, message_type
		 FROM group_messages
		 WHERE group_id = $1
		 ORDER BY timestamp DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		groupID, count, offset)
	if err != nil {
		return nil, fmt.Errorf("querying group history: %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.Group, &m.From, &m.Content, &m.Timestamp, &m.Kind); err != nil {
			return nil, fmt.Errorf("scanning group history row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying group history: %w", err)
	}
	return msgs, nil
}
