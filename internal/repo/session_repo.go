package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kamdhenuseva/server/internal/model"
)

// SessionRepo persists authentication audit records.
type SessionRepo interface {
	Create(ctx context.Context, s model.Session) (model.Session, error)
}

type sessionRepo struct {
	db *sql.DB
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(db *sql.DB) SessionRepo {
	return &sessionRepo{db: db}
}

// Create inserts a session row and fills in the generated fields.
func (r *sessionRepo) Create(ctx context.Context, s model.Session) (model.Session, error) {
	if s.AccountKind == "" {
		s.AccountKind = model.AccountKindUser
	}
	if s.Location == "" {
		s.Location = "Unknown"
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (account_id, account_kind, token_hash, ip_address, location, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, s.AccountID, string(s.AccountKind), s.TokenHash, s.IPAddress, s.Location, s.UserAgent).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return s, nil
}
