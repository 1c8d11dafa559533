package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/model"
	"github.com/kamdhenuseva/server/internal/repo"
)

// CookieName is the session cookie set on successful authentication.
const CookieName = "user-token"

// SessionMode says whether a failed audit write fails the caller.
type SessionMode int

const (
	// SessionRequired propagates audit write errors.
	SessionRequired SessionMode = iota
	// SessionBestEffort logs audit write errors; the token is still returned.
	SessionBestEffort
)

// RequestMeta describes where an authentication came from.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// MetaFromRequest reads the client IP (first X-Forwarded-For hop, else RemoteAddr)
// and user agent.
func MetaFromRequest(r *http.Request) RequestMeta {
	ip := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	ua := r.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	return RequestMeta{IP: ip, UserAgent: ua}
}

// IssuedToken is a signed bearer credential.
type IssuedToken struct {
	Token string
	TTL   time.Duration
}

// SessionIssuer mints bearer tokens and records a session row for audit.
type SessionIssuer struct {
	tokens   *JWTService
	sessions repo.SessionRepo
	logger   *zap.Logger
}

// NewSessionIssuer creates a SessionIssuer.
func NewSessionIssuer(tokens *JWTService, sessions repo.SessionRepo, logger *zap.Logger) *SessionIssuer {
	return &SessionIssuer{tokens: tokens, sessions: sessions, logger: logger}
}

// Issue signs a token for acct and writes the session record according to mode.
func (s *SessionIssuer) Issue(ctx context.Context, acct model.Account, meta RequestMeta, mode SessionMode) (IssuedToken, error) {
	token, err := s.tokens.Sign(acct.ID, acct.Email)
	if err != nil {
		return IssuedToken{}, err
	}
	_, err = s.sessions.Create(ctx, model.Session{
		AccountID:   acct.ID,
		AccountKind: model.AccountKindUser,
		TokenHash:   HashToken(token),
		IPAddress:   meta.IP,
		Location:    "Unknown",
		UserAgent:   meta.UserAgent,
	})
	if err != nil {
		if mode == SessionRequired {
			return IssuedToken{}, fmt.Errorf("record session: %w", err)
		}
		s.logger.Warn("session audit write failed",
			zap.String("account_id", acct.ID.String()),
			zap.Error(err))
	}
	return IssuedToken{Token: token, TTL: s.tokens.TTL()}, nil
}

// Rotate signs a fresh token without writing a session record.
func (s *SessionIssuer) Rotate(acct model.Account) (IssuedToken, error) {
	token, err := s.tokens.Sign(acct.ID, acct.Email)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: token, TTL: s.tokens.TTL()}, nil
}

// SetCookie writes the token as an HTTP-only, secure, cross-site cookie.
func SetCookie(w http.ResponseWriter, t IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    t.Token,
		Path:     "/",
		MaxAge:   int(t.TTL / time.Second),
		Expires:  time.Now().Add(t.TTL),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// ClearCookie revokes the client credential. Issued tokens stay valid until expiry.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// TokenFromRequest returns the session cookie, else a Bearer Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
