package duckdb

import (
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// HashPassword returns the bcrypt hash stored for an account password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("duckdb: hash password: %w", err)
	}
	return string(h), nil
}

// Authenticate checks username and password against the accounts table.
func (s *Store) Authenticate(username, password string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var (
		a    model.Account
		hash string
	)
	err := s.db.QueryRowContext(ctx, `SELECT username, domain, full_name, role, enabled, password_hash FROM accounts WHERE username = ?`, username).
		Scan(&a.Username, &a.Domain, &a.FullName, &a.Role, &a.Enabled, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrBadCredentials
	}
	if err != nil {
		return model.Account{}, fmt.Errorf("duckdb: authenticate: %w", err)
	}
	if !a.Enabled || hash == "" {
		return model.Account{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return model.Account{}, ErrBadCredentials
	}
	return a, nil
}
