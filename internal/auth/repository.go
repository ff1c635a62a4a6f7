package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// SessionPrincipal is a principal together with the expiry of the session it came from.
type SessionPrincipal struct {
	Principal models.Principal
	ExpiresAt time.Time
}

// Repository handles users and sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, password_hash, name, role, created_at, updated_at`

// GetUserByEmail returns a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &u, nil
}

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, email, passwordHash, name string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, name, role) VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	var u models.User
	err := r.pool.QueryRow(ctx, q, email, passwordHash, name, string(role)).
		Scan(&u.ID, &u.Email, &u.Password, &u.Name, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// CreateSession persists s and fills in its generated id and created_at.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (token, user_id, expires_at, ip_address, user_agent)
		VALUES ($1, $2, $3, NULLIF($4,''), NULLIF($5,''))
		RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, s.Token, s.UserID, s.ExpiresAt, s.IPAddress, s.UserAgent).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// DeleteSession removes the session with token. Missing sessions are not an error.
func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions that expired before now and returns how many were removed.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PrincipalByToken resolves a live session token to its user and linked profiles.
// Returns database.ErrNotFound when the token is unknown or expired at now.
func (r *Repository) PrincipalByToken(ctx context.Context, token string, now time.Time) (*SessionPrincipal, error) {
	const q = `SELECT u.id, u.email, u.role, sp.id, pb.id, s.expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN sponsors sp ON sp.user_id = u.id
		LEFT JOIN publishers pb ON pb.user_id = u.id
		WHERE s.token = $1 AND s.expires_at > $2`
	var (
		sp          SessionPrincipal
		sponsorID   *uuid.UUID
		publisherID *uuid.UUID
	)
	err := r.pool.QueryRow(ctx, q, token, now).Scan(
		&sp.Principal.UserID, &sp.Principal.Email, &sp.Principal.Role, &sponsorID, &publisherID, &sp.ExpiresAt,
	)
	if err != nil {
		return nil, database.NotFound(err)
	}
	sp.Principal.SponsorID = sponsorID
	sp.Principal.PublisherID = publisherID
	return &sp, nil
}
