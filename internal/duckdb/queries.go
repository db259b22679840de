package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// sortable maps the sort_order names a listing accepts to columns.
type sortable struct {
	columns map[string]string
	def     string
}

var (
	accountSort = sortable{
		columns: map[string]string{"username": "username", "name": "full_name", "domain": "domain", "role": "role"},
		def:     "username",
	}
	messageSort = sortable{
		columns: map[string]string{"date": "date", "from": "sender", "subject": "subject", "size": "size"},
		def:     "-date",
	}
	quarantineSort = sortable{
		columns: map[string]string{"date": "date", "score": "score", "from": "sender", "subject": "subject", "to": "recipient"},
		def:     "-date",
	}
)

// orderBy turns "name" or "-name" into an ORDER BY clause. Unknown names
// fall back to the listing default so user input never reaches the SQL.
func (s sortable) orderBy(order string) string {
	order = strings.TrimSpace(order)
	if order == "" {
		order = s.def
	}
	desc := strings.HasPrefix(order, "-")
	col, ok := s.columns[strings.TrimPrefix(order, "-")]
	if !ok {
		return s.orderBy(s.def)
	}
	if desc {
		return "ORDER BY " + col + " DESC"
	}
	return "ORDER BY " + col + " ASC"
}

// where accumulates AND-ed conditions and their args.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// likePattern wraps p for a substring ILIKE match. Wildcards typed by the
// user match literally; pair it with ESCAPE '\'.
func likePattern(p string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(p)) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// page counts the rows matched by w in table and clamps the requested page.
func (s *Store) page(table string, w *where, opts model.ListOpts) (model.Page, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	var total int
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", table, w.String())
	if err := s.db.QueryRowContext(ctx, q, w.args...).Scan(&total); err != nil {
		return model.Page{}, fmt.Errorf("duckdb: count %s: %w", table, err)
	}
	return model.NewPage(opts.Page, s.pageSize(opts), total), nil
}

// ListDomains returns every domain with its mailbox count.
func (s *Store) ListDomains() ([]model.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.name, d.enabled, d.quota_mb, COUNT(a.username)
		FROM domains d
		LEFT JOIN accounts a ON a.domain = d.name
		GROUP BY d.name, d.enabled, d.quota_mb
		ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("duckdb: list domains: %w", err)
	}
	defer rows.Close()

	var out []model.Domain
	for rows.Next() {
		var d model.Domain
		if err := rows.Scan(&d.Name, &d.Enabled, &d.QuotaMB, &d.Mailboxes); err != nil {
			return nil, fmt.Errorf("duckdb: scan domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListAccounts returns one page of accounts. Pattern matches the username
// or full name.
func (s *Store) ListAccounts(opts model.ListOpts) ([]model.Account, model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := &where{}
	if opts.Pattern != "" {
		p := likePattern(opts.Pattern)
		w.add(`(username ILIKE ? ESCAPE '\' OR full_name ILIKE ? ESCAPE '\')`, p, p)
	}
	if opts.Domain != "" {
		w.add("domain = ?", opts.Domain)
	}

	pg, err := s.page("accounts", w, opts)
	if err != nil {
		return nil, pg, err
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	size := s.pageSize(opts)
	q := fmt.Sprintf(`SELECT username, domain, full_name, role, enabled FROM accounts %s %s LIMIT ? OFFSET ?`,
		w.String(), accountSort.orderBy(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, q, append(w.args, size, pg.Offset(size))...)
	if err != nil {
		return nil, pg, fmt.Errorf("duckdb: list accounts: %w", err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.Username, &a.Domain, &a.FullName, &a.Role, &a.Enabled); err != nil {
			return nil, pg, fmt.Errorf("duckdb: scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, pg, rows.Err()
}

// ListMessages returns one page of a mailbox, without bodies. An empty
// account lists the mailbox across all accounts.
func (s *Store) ListMessages(account, mailbox string, opts model.ListOpts) ([]model.Message, model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if mailbox == "" {
		mailbox = "INBOX"
	}
	w := &where{}
	w.add("mailbox = ?", mailbox)
	if account != "" {
		w.add("account = ?", account)
	}
	if opts.Pattern != "" {
		p := likePattern(opts.Pattern)
		w.add(`(subject ILIKE ? ESCAPE '\' OR sender ILIKE ? ESCAPE '\')`, p, p)
	}

	pg, err := s.page("messages", w, opts)
	if err != nil {
		return nil, pg, err
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	size := s.pageSize(opts)
	q := fmt.Sprintf(`SELECT id, account, mailbox, sender, recipient, subject, date, size, unread
		FROM messages %s %s LIMIT ? OFFSET ?`, w.String(), messageSort.orderBy(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, q, append(w.args, size, pg.Offset(size))...)
	if err != nil {
		return nil, pg, fmt.Errorf("duckdb: list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Account, &m.Mailbox, &m.From, &m.To, &m.Subject, &m.Date, &m.Size, &m.Unread); err != nil {
			return nil, pg, fmt.Errorf("duckdb: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, pg, rows.Err()
}

// GetMessage returns one message with its body and marks it read. An empty
// account skips the ownership check.
func (s *Store) GetMessage(account string, id int64) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	w := &where{}
	w.add("id = ?", id)
	if account != "" {
		w.add("account = ?", account)
	}

	var m model.Message
	q := `SELECT id, account, mailbox, sender, recipient, subject, body, date, size, unread FROM messages ` + w.String()
	err := s.db.QueryRowContext(ctx, q, w.args...).
		Scan(&m.ID, &m.Account, &m.Mailbox, &m.From, &m.To, &m.Subject, &m.Body, &m.Date, &m.Size, &m.Unread)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("%w: message %d", ErrNotFound, id)
	}
	if err != nil {
		return m, fmt.Errorf("duckdb: get message: %w", err)
	}

	if m.Unread {
		if _, err := s.db.ExecContext(ctx, `UPDATE messages SET unread = false WHERE id = ?`, id); err != nil {
			return m, fmt.Errorf("duckdb: mark read: %w", err)
		}
		m.Unread = false
	}
	return m, nil
}

// ListQuarantine returns one page of held messages that were not released.
// Domain restricts to recipients of that domain.
func (s *Store) ListQuarantine(opts model.ListOpts) ([]model.QuarantineItem, model.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := &where{}
	w.add("NOT released")
	if opts.Pattern != "" {
		p := likePattern(opts.Pattern)
		w.add(`(subject ILIKE ? ESCAPE '\' OR sender ILIKE ? ESCAPE '\' OR recipient ILIKE ? ESCAPE '\')`, p, p, p)
	}
	if opts.Domain != "" {
		w.add("lower(split_part(recipient, '@', 2)) = lower(?)", strings.TrimSpace(opts.Domain))
	}

	pg, err := s.page("quarantine", w, opts)
	if err != nil {
		return nil, pg, err
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	size := s.pageSize(opts)
	q := fmt.Sprintf(`SELECT id, recipient, sender, subject, reason, score, date, released
		FROM quarantine %s %s LIMIT ? OFFSET ?`, w.String(), quarantineSort.orderBy(opts.SortOrder))
	rows, err := s.db.QueryContext(ctx, q, append(w.args, size, pg.Offset(size))...)
	if err != nil {
		return nil, pg, fmt.Errorf("duckdb: list quarantine: %w", err)
	}
	defer rows.Close()

	var out []model.QuarantineItem
	for rows.Next() {
		var it model.QuarantineItem
		if err := rows.Scan(&it.ID, &it.Recipient, &it.Sender, &it.Subject, &it.Reason, &it.Score, &it.Date, &it.Released); err != nil {
			return nil, pg, fmt.Errorf("duckdb: scan quarantine: %w", err)
		}
		out = append(out, it)
	}
	return out, pg, rows.Err()
}

// GetQuarantined returns one held message with its body.
func (s *Store) GetQuarantined(id int64) (model.QuarantineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var it model.QuarantineItem
	err := s.db.QueryRowContext(ctx, `SELECT id, recipient, sender, subject, reason, score, body, date, released
		FROM quarantine WHERE id = ?`, id).
		Scan(&it.ID, &it.Recipient, &it.Sender, &it.Subject, &it.Reason, &it.Score, &it.Body, &it.Date, &it.Released)
	if errors.Is(err, sql.ErrNoRows) {
		return it, fmt.Errorf("%w: quarantined message %d", ErrNotFound, id)
	}
	if err != nil {
		return it, fmt.Errorf("duckdb: get quarantined: %w", err)
	}
	return it, nil
}

// TrafficStats returns daily counters since the given day. With an empty
// domain the counters are summed across domains.
func (s *Store) TrafficStats(since time.Time, domain string) ([]model.TrafficPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	day := since.UTC().Truncate(24 * time.Hour)
	var (
		rows *sql.Rows
		err  error
	)
	if domain != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT day, domain, sent, received, spam
			FROM traffic WHERE day >= ? AND domain = ?
			ORDER BY day`, day, domain)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT day, '' AS domain, SUM(sent)::BIGINT, SUM(received)::BIGINT, SUM(spam)::BIGINT
			FROM traffic WHERE day >= ?
			GROUP BY day
			ORDER BY day`, day)
	}
	if err != nil {
		return nil, fmt.Errorf("duckdb: traffic stats: %w", err)
	}
	defer rows.Close()

	var out []model.TrafficPoint
	for rows.Next() {
		var p model.TrafficPoint
		var sent, received, spam sql.NullInt64
		if err := rows.Scan(&p.Day, &p.Domain, &sent, &received, &spam); err != nil {
			return nil, fmt.Errorf("duckdb: scan traffic: %w", err)
		}
		p.Sent, p.Received, p.Spam = sent.Int64, received.Int64, spam.Int64
		out = append(out, p)
	}
	return out, rows.Err()
}

// Settings returns a user's preferences sorted by name.
func (s *Store) Settings(username string) ([]model.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM settings WHERE username = ? ORDER BY name`, username)
	if err != nil {
		return nil, fmt.Errorf("duckdb: settings: %w", err)
	}
	defer rows.Close()

	out := []model.Setting{}
	for rows.Next() {
		var st model.Setting
		if err := rows.Scan(&st.Name, &st.Value); err != nil {
			return nil, fmt.Errorf("duckdb: scan setting: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
