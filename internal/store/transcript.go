package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/automarket/internal/model"
)

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg model.TranscriptMessage) (model.TranscriptMessage, error) {
	if msg.ProductID == "" {
		return msg, fmt.Errorf("append message: product id is required")
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.ID == "" {
		msg.ID = s.newID(msg.CreatedAt)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcript_messages (id, product_id, role, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ProductID, string(msg.Role), msg.Text, msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return msg, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// History returns the most recent Limit messages (default 50), oldest first.
func (s *SQLiteStore) History(ctx context.Context, p HistoryParams) ([]model.TranscriptMessage, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, product_id, role, text, created_at FROM (
		SELECT id, product_id, role, text, created_at FROM transcript_messages
		WHERE (? = '' OR product_id = ?)
		ORDER BY id DESC LIMIT ?
	) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, p.ProductID, p.ProductID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TranscriptMessage
	for rows.Next() {
		var m model.TranscriptMessage
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.ProductID, &role, &m.Text, &createdAt); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}
