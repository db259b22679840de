package httpserver

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/mailnav/internal/model"
)

const (
	msgDenied   = "permission denied"
	msgNotFound = "no such item"
	msgInternal = "internal error"
	dayLayout   = "2006-01-02"
)

var periods = map[string]int{
	"day":   1,
	"week":  7,
	"month": 30,
}

// scope holds what the caller may see.
type scope struct {
	claims *Claims
	domain string // forced domain filter, empty for super admins
}

func (sc scope) admin() bool {
	return sc.claims.Role == model.RoleSuperAdmin || sc.claims.Role == model.RoleDomainAdmin
}

// allows reports whether an address belongs to the caller's domain.
func (sc scope) allows(address string) bool {
	if sc.domain == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(address), "@"+strings.ToLower(sc.domain))
}

func scopeOf(c *gin.Context) scope {
	claims := claimsOf(c)
	if claims == nil {
		claims = &Claims{}
	}
	sc := scope{claims: claims}
	if claims.Role != model.RoleSuperAdmin {
		sc.domain = claims.Domain
	}
	return sc
}

func listOpts(c *gin.Context, sc scope) model.ListOpts {
	opts := model.ListOpts{
		Pattern:   c.Query("pattern"),
		SortOrder: c.Query("sort_order"),
		Domain:    c.Query("domain"),
	}
	if p, err := strconv.Atoi(c.Query("page")); err == nil {
		opts.Page = p
	}
	if sc.domain != "" {
		opts.Domain = sc.domain
	}
	return opts
}

func mailID(c *gin.Context) (int64, bool, error) {
	raw := c.Query("mailid")
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, true, err
	}
	return id, true, nil
}

// fail maps a store error to a "ko" answer.
func fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respondKO(c, msgNotFound)
	case errors.Is(err, model.ErrAlreadyReleased):
		respondKO(c, "message already released")
	default:
		log.Printf("httpserver: %s: %v", op, err)
		respondKO(c, msgInternal)
	}
}

func (s *Server) handleListing(c *gin.Context) {
	sc := scopeOf(c)
	if !sc.admin() {
		respondKO(c, msgDenied)
		return
	}
	opts := listOpts(c, sc)

	accounts, pg, err := s.store.ListAccounts(opts)
	if err != nil {
		fail(c, "list accounts", err)
		return
	}
	domains, err := s.store.ListDomains()
	if err != nil {
		fail(c, "list domains", err)
		return
	}
	if sc.domain != "" {
		visible := domains[:0]
		for _, d := range domains {
			if d.Name == sc.domain {
				visible = append(visible, d)
			}
		}
		domains = visible
	}

	respondOK(c, "listing", gin.H{
		"rows":       nonNil(accounts),
		"domains":    nonNil(domains),
		"pagination": pg,
	})
}

func (s *Server) handleWebmail(c *gin.Context) {
	sc := scopeOf(c)
	account := sc.claims.Username()
	if other := c.Query("account"); other != "" && other != account {
		if !sc.admin() || !sc.allows(other) {
			respondKO(c, msgDenied)
			return
		}
		account = other
	}

	id, hasID, err := mailID(c)
	if err != nil {
		respondKO(c, "invalid mailid")
		return
	}
	if hasID {
		m, err := s.store.GetMessage(account, id)
		if err != nil {
			fail(c, "get message", err)
			return
		}
		respondOK(c, "viewmail", gin.H{"mail": m})
		return
	}

	mbox := c.DefaultQuery("mbox", "INBOX")
	opts := listOpts(c, sc)
	opts.Domain = ""
	msgs, pg, err := s.store.ListMessages(account, mbox, opts)
	if err != nil {
		fail(c, "list messages", err)
		return
	}
	respondOK(c, "listmailbox", gin.H{
		"mbox":       mbox,
		"account":    account,
		"rows":       nonNil(msgs),
		"pagination": pg,
	})
}

func (s *Server) handleQuarantine(c *gin.Context) {
	sc := scopeOf(c)
	if !sc.admin() {
		respondKO(c, msgDenied)
		return
	}

	id, hasID, err := mailID(c)
	if err != nil {
		respondKO(c, "invalid mailid")
		return
	}
	if hasID {
		it, ok := s.quarantined(c, sc, id)
		if !ok {
			return
		}
		respondOK(c, "viewquarantine", gin.H{"mail": it})
		return
	}

	items, pg, err := s.store.ListQuarantine(listOpts(c, sc))
	if err != nil {
		fail(c, "list quarantine", err)
		return
	}
	respondOK(c, "quarantine", gin.H{
		"rows":       nonNil(items),
		"pagination": pg,
	})
}

// quarantined loads a held message the caller is allowed to act on. It
// writes the failure answer itself.
func (s *Server) quarantined(c *gin.Context, sc scope, id int64) (model.QuarantineItem, bool) {
	it, err := s.store.GetQuarantined(id)
	if err != nil {
		fail(c, "get quarantined", err)
		return it, false
	}
	if !sc.allows(it.Recipient) {
		// Same answer as a missing item.
		respondKO(c, msgNotFound)
		return it, false
	}
	return it, true
}

func (s *Server) handleRelease(c *gin.Context) {
	s.quarantineAction(c, "released", s.store.ReleaseQuarantined)
}

func (s *Server) handleDelete(c *gin.Context) {
	s.quarantineAction(c, "deleted", s.store.DeleteQuarantined)
}

func (s *Server) quarantineAction(c *gin.Context, done string, act func(int64) error) {
	sc := scopeOf(c)
	if !sc.admin() {
		respondKO(c, msgDenied)
		return
	}
	id, hasID, err := mailID(c)
	if err != nil || !hasID {
		respondKO(c, "invalid mailid")
		return
	}
	if _, ok := s.quarantined(c, sc, id); !ok {
		return
	}
	if err := act(id); err != nil {
		fail(c, "quarantine "+done, err)
		return
	}
	respondOK(c, "", gin.H{"respmsg": "message " + strconv.FormatInt(id, 10) + " " + done})
}

func (s *Server) handleStats(c *gin.Context) {
	sc := scopeOf(c)
	if !sc.admin() {
		respondKO(c, msgDenied)
		return
	}

	period := c.DefaultQuery("period", model.DefaultStatsPeriod)
	days, ok := periods[period]
	if !ok {
		respondKO(c, "unknown period "+strconv.Quote(period))
		return
	}
	since := s.now().UTC().AddDate(0, 0, -days+1)
	if from := c.Query("from"); from != "" {
		t, err := time.Parse(dayLayout, from)
		if err != nil {
			respondKO(c, "invalid from date")
			return
		}
		since = t
	}

	domain := c.Query("domain")
	if sc.domain != "" {
		domain = sc.domain
	}
	series, err := s.store.TrafficStats(since, domain)
	if err != nil {
		fail(c, "traffic stats", err)
		return
	}
	respondOK(c, "stats", gin.H{
		"period": period,
		"from":   since.Format(dayLayout),
		"domain": domain,
		"series": nonNil(series),
	})
}

func (s *Server) handleSettings(c *gin.Context) {
	user := scopeOf(c).claims.Username()
	settings, err := s.store.Settings(user)
	if err != nil {
		fail(c, "settings", err)
		return
	}
	respondOK(c, "settings", gin.H{"settings": settings})
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	user := scopeOf(c).claims.Username()
	if err := c.Request.ParseForm(); err != nil {
		respondKO(c, "invalid form")
		return
	}

	names := make([]string, 0, len(c.Request.PostForm))
	for name := range c.Request.PostForm {
		names = append(names, name)
	}
	if len(names) == 0 {
		respondKO(c, "nothing to save")
		return
	}
	sort.Strings(names)
	settings := make([]model.Setting, 0, len(names))
	for _, name := range names {
		settings = append(settings, model.Setting{Name: name, Value: c.Request.PostForm.Get(name)})
	}
	if err := s.store.SaveSettings(user, settings); err != nil {
		fail(c, "save settings", err)
		return
	}

	saved, err := s.store.Settings(user)
	if err != nil {
		fail(c, "settings", err)
		return
	}
	respondOK(c, "settings", gin.H{"settings": saved, "respmsg": "settings saved"})
}

func (s *Server) handleLogin(c *gin.Context) {
	username := strings.TrimSpace(c.PostForm("username"))
	password := c.PostForm("password")
	if username == "" || password == "" {
		respondKO(c, "username and password are required")
		return
	}

	account, err := s.store.Authenticate(username, password)
	if errors.Is(err, model.ErrBadCredentials) {
		respondKO(c, "invalid credentials")
		return
	}
	if err != nil {
		fail(c, "authenticate", err)
		return
	}

	token, exp, err := s.sessions.Issue(account)
	if err != nil {
		fail(c, "issue session", err)
		return
	}
	s.setSessionCookie(c, token, exp)
	respondOK(c, "", gin.H{
		"username": account.Username,
		"role":     account.Role,
		"respmsg":  "welcome " + account.FullName,
	})
}

func (s *Server) handleLoginRequired(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  statusKO,
		"respmsg": "login required",
		"next":    c.Query("next"),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	respondOK(c, "", gin.H{"respmsg": "logged out"})
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
