package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// ErrAlreadyReleased is returned when releasing a message twice.
var ErrAlreadyReleased = model.ErrAlreadyReleased

// ReleaseQuarantined delivers a held message to its recipient's INBOX and
// marks it released.
func (s *Store) ReleaseQuarantined(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin release: %w", err)
	}
	defer tx.Rollback()

	var it model.QuarantineItem
	err = tx.QueryRowContext(ctx, `SELECT recipient, sender, subject, body, date, released FROM quarantine WHERE id = ?`, id).
		Scan(&it.Recipient, &it.Sender, &it.Subject, &it.Body, &it.Date, &it.Released)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: quarantined message %d", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("duckdb: load quarantined: %w", err)
	}
	if it.Released {
		return fmt.Errorf("%w: %d", ErrAlreadyReleased, id)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE quarantine SET released = true WHERE id = ?`, id); err != nil {
		return fmt.Errorf("duckdb: mark released: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (account, mailbox, sender, recipient, subject, body, date, size, unread)
		VALUES (?, 'INBOX', ?, ?, ?, ?, ?, ?, true)`,
		it.Recipient, it.Sender, it.Recipient, it.Subject, it.Body, it.Date, int64(len(it.Body))); err != nil {
		return fmt.Errorf("duckdb: deliver released: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit release: %w", err)
	}
	return nil
}

// DeleteQuarantined removes a held message for good.
func (s *Store) DeleteQuarantined(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("duckdb: delete quarantined: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: quarantined message %d", ErrNotFound, id)
	}
	return nil
}

// PurgeQuarantineBefore deletes held messages dated before cutoff.
func (s *Store) PurgeQuarantineBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE date < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("duckdb: purge quarantine: %w", err)
	}
	return res.RowsAffected()
}

// SaveSettings upserts a user's preferences. Blank names are rejected.
func (s *Store) SaveSettings(username string, settings []model.Setting) error {
	if strings.TrimSpace(username) == "" {
		return errors.New("duckdb: save settings: empty username")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin settings: %w", err)
	}
	defer tx.Rollback()

	for _, st := range settings {
		name := strings.TrimSpace(st.Name)
		if name == "" {
			return errors.New("duckdb: save settings: empty setting name")
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO settings (username, name, value) VALUES (?, ?, ?)`,
			username, name, st.Value); err != nil {
			return fmt.Errorf("duckdb: save setting %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit settings: %w", err)
	}
	return nil
}
