package store

import (
	"context"
	"fmt"
)

func (s *SQLiteStore) LoadSession(ctx context.Context) (string, string, error) {
	token, err := s.get(ctx, s.db, TokenKey)
	if err != nil {
		return "", "", fmt.Errorf("load token: %w", err)
	}
	profile, err := s.get(ctx, s.db, ProfileKey)
	if err != nil {
		return "", "", fmt.Errorf("load profile: %w", err)
	}
	return token, profile, nil
}

func (s *SQLiteStore) LoadToken(ctx context.Context) (string, error) {
	return s.get(ctx, s.db, TokenKey)
}

func (s *SQLiteStore) SaveSession(ctx context.Context, token, profile string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.set(ctx, tx, TokenKey, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if profile == "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, ProfileKey); err != nil {
			return fmt.Errorf("clear profile: %w", err)
		}
	} else if err := s.set(ctx, tx, ProfileKey, profile); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, profile string) error {
	return s.set(ctx, s.db, ProfileKey, profile)
}

func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?)`, TokenKey, ProfileKey)
	return err
}
