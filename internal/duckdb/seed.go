package duckdb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// Seed is the fixture file loaded by "mailnav seed".
type Seed struct {
	Domains    []model.Domain               `yaml:"domains"`
	Accounts   []model.Account              `yaml:"accounts"`
	Messages   []model.Message              `yaml:"messages"`
	Quarantine []model.QuarantineItem       `yaml:"quarantine"`
	Traffic    []model.TrafficPoint         `yaml:"traffic"`
	Settings   map[string]map[string]string `yaml:"settings"`
}

// SeedCounts reports how many rows ApplySeed wrote per table.
type SeedCounts struct {
	Domains, Accounts, Messages, Quarantine, Traffic, Settings int
}

// LoadSeed reads a YAML fixture file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("duckdb: read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML fixture data. Unknown keys are rejected.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("duckdb: parse seed: %w", err)
	}
	for i, a := range seed.Accounts {
		if a.Username == "" || a.Domain == "" {
			return nil, fmt.Errorf("duckdb: seed account %d: username and domain are required", i)
		}
	}
	return &seed, nil
}

// ApplySeed upserts domains, accounts, traffic and settings and appends
// messages and quarantine items, all in one transaction.
func (s *Store) ApplySeed(seed *Seed) (SeedCounts, error) {
	var n SeedCounts
	if seed == nil {
		return n, errors.New("duckdb: nil seed")
	}

	// Hash outside the lock; bcrypt is slow on purpose.
	hashes := make([]string, len(seed.Accounts))
	for i, a := range seed.Accounts {
		if a.Password == "" {
			continue
		}
		h, err := HashPassword(a.Password)
		if err != nil {
			return n, err
		}
		hashes[i] = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return n, fmt.Errorf("duckdb: begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, d := range seed.Domains {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO domains (name, enabled, quota_mb) VALUES (?, ?, ?)`,
			d.Name, d.Enabled, d.QuotaMB); err != nil {
			return n, fmt.Errorf("duckdb: seed domain %s: %w", d.Name, err)
		}
		n.Domains++
	}

	for i, a := range seed.Accounts {
		role := a.Role
		if role == "" {
			role = model.RoleSimpleUser
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO accounts (username, domain, full_name, role, enabled, password_hash)
			VALUES (?, ?, ?, ?, ?, ?)`, a.Username, a.Domain, a.FullName, role, a.Enabled, hashes[i]); err != nil {
			return n, fmt.Errorf("duckdb: seed account %s: %w", a.Username, err)
		}
		n.Accounts++
	}

	for _, m := range seed.Messages {
		mbox := m.Mailbox
		if mbox == "" {
			mbox = "INBOX"
		}
		date := m.Date
		if date.IsZero() {
			date = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages (account, mailbox, sender, recipient, subject, body, date, size, unread)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Account, mbox, m.From, m.To, m.Subject, m.Body, date, int64(len(m.Body)), m.Unread); err != nil {
			return n, fmt.Errorf("duckdb: seed message %q: %w", m.Subject, err)
		}
		n.Messages++
	}

	for _, q := range seed.Quarantine {
		date := q.Date
		if date.IsZero() {
			date = time.Now().UTC()
		}
		reason := q.Reason
		if reason == "" {
			reason = "spam"
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO quarantine (recipient, sender, subject, reason, score, body, date, released)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			q.Recipient, q.Sender, q.Subject, reason, q.Score, q.Body, date, q.Released); err != nil {
			return n, fmt.Errorf("duckdb: seed quarantine %q: %w", q.Subject, err)
		}
		n.Quarantine++
	}

	for _, p := range seed.Traffic {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO traffic (day, domain, sent, received, spam) VALUES (?, ?, ?, ?, ?)`,
			p.Day.UTC().Truncate(24*time.Hour), p.Domain, p.Sent, p.Received, p.Spam); err != nil {
			return n, fmt.Errorf("duckdb: seed traffic %s: %w", p.Domain, err)
		}
		n.Traffic++
	}

	for user, values := range seed.Settings {
		for name, value := range values {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO settings (username, name, value) VALUES (?, ?, ?)`,
				user, name, value); err != nil {
				return n, fmt.Errorf("duckdb: seed setting %s.%s: %w", user, name, err)
			}
			n.Settings++
		}
	}

	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("duckdb: commit seed: %w", err)
	}
	return n, nil
}
