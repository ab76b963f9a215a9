package store

import (
	"context"
	"os"
)

// Stats holds local storage statistics.
type Stats struct {
	DBPath        string         `json:"db_path"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	LoggedIn      bool           `json:"logged_in"`
	TotalMessages int            `json:"total_messages"`
	Products      []ProductStats `json:"products"`
}

// ProductStats holds per-product transcript counts.
type ProductStats struct {
	ProductID string `json:"product_id"`
	Messages  int    `json:"messages"`
}

// Stats returns local storage statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	token, err := s.LoadToken(ctx)
	if err != nil {
		return st, err
	}
	st.LoggedIn = token != ""

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcript_messages`).Scan(&st.TotalMessages); err != nil {
		return st, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, COUNT(*) AS cnt
		FROM transcript_messages
		GROUP BY product_id ORDER BY cnt DESC, product_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ps ProductStats
		if err := rows.Scan(&ps.ProductID, &ps.Messages); err != nil {
			return st, err
		}
		st.Products = append(st.Products, ps)
	}

	return st, rows.Err()
}
