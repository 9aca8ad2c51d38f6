package store

import (
	"context"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertGroupMessage(ctx context.Context, roomName string, authorID int64, body string) (GroupMessage, error) {
	var item GroupMessage
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO group_messages (faculty, user_id, message)
			VALUES ($1, $2, $3)
			RETURNING id, faculty, user_id, message, created_at
		)
		SELECT i.id, i.faculty, i.message, i.created_at,
			u.id, u.full_name, u.faculty, u.degree, u.course, u.avatar
		FROM inserted i
		JOIN users u ON u.id = i.user_id
	`, roomName, authorID, body).Scan(
		&item.ID, &item.RoomName, &item.Body, &item.CreatedAt,
		&item.Author.ID, &item.Author.FullName, &item.Author.Faculty, &item.Author.Degree, &item.Author.Course, &item.Author.Avatar,
	)
	if err != nil {
		return GroupMessage{}, translate(err, "insert group message")
	}
	return item, nil
}

func (s *PostgresStore) InsertPrivateMessage(ctx context.Context, senderID, receiverID int64, body string) (PrivateMessage, error) {
	var item PrivateMessage
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO private_messages (sender_id, receiver_id, message)
			VALUES ($1, $2, $3)
			RETURNING id, sender_id, receiver_id, message, created_at
		)
		SELECT i.id, i.sender_id, i.receiver_id, i.message, i.created_at, u.full_name, u.avatar
		FROM inserted i
		JOIN users u ON u.id = i.sender_id
	`, senderID, receiverID, body).Scan(
		&item.ID, &item.SenderID, &item.ReceiverID, &item.Body, &item.CreatedAt, &item.SenderName, &item.SenderAvatar,
	)
	if err != nil {
		return PrivateMessage{}, translate(err, "insert private message")
	}
	return item, nil
}

// GroupHistory returns the newest limit messages of a room in ascending
// order. Authors the requester currently blocks are excluded at read time,
// so unblocking restores their earlier messages.
func (s *PostgresStore) GroupHistory(ctx context.Context, roomName string, requesterID int64, limit int) ([]GroupMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, faculty, message, created_at, user_id, full_name, author_faculty, degree, course, avatar
		FROM (
			SELECT gm.id, gm.faculty, gm.message, gm.created_at,
				u.id AS user_id, u.full_name, u.faculty AS author_faculty, u.degree, u.course, u.avatar
			FROM group_messages gm
			JOIN users u ON u.id = gm.user_id
			WHERE gm.faculty = $1
				AND NOT EXISTS (
					SELECT 1 FROM blocked_users b
					WHERE b.blocker_id = $2 AND b.blocked_id = gm.user_id
				)
			ORDER BY gm.id DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC, id ASC
	`, roomName, requesterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list group messages: %w", err)
	}
	defer rows.Close()

	items := make([]GroupMessage, 0)
	for rows.Next() {
		var item GroupMessage
		if err := rows.Scan(
			&item.ID, &item.RoomName, &item.Body, &item.CreatedAt,
			&item.Author.ID, &item.Author.FullName, &item.Author.Faculty, &item.Author.Degree, &item.Author.Course, &item.Author.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan group message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) PrivateHistory(ctx context.Context, a, b int64) ([]PrivateMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.id, pm.sender_id, pm.receiver_id, pm.message, pm.created_at, u.full_name, u.avatar
		FROM private_messages pm
		JOIN users u ON u.id = pm.sender_id
		WHERE (pm.sender_id = $1 AND pm.receiver_id = $2)
			OR (pm.sender_id = $2 AND pm.receiver_id = $1)
		ORDER BY pm.created_at ASC, pm.id ASC
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("list private messages: %w", err)
	}
	defer rows.Close()

	items := make([]PrivateMessage, 0)
	for rows.Next() {
		var item PrivateMessage
		if err := rows.Scan(&item.ID, &item.SenderID, &item.ReceiverID, &item.Body, &item.CreatedAt, &item.SenderName, &item.SenderAvatar); err != nil {
			return nil, fmt.Errorf("scan private message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate private messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteGroupMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM group_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete group messages: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresStore) DeletePrivateMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM private_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete private messages: %w", err)
	}
	return result.RowsAffected()
}
