package repository

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/domain"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// PostgresRepository implements domain.AuthRepository and
// auth.CredentialStore on PostgreSQL.
type PostgresRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresRepository(db *pgxpool.Pool, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

// EnsureSchema creates the tables if they do not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Credentials

func (r *PostgresRepository) CreateCredential(ctx context.Context, c *auth.Credential) error {
	query := `
		INSERT INTO credentials (user_id, email, password_hash, display_name, google_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, c.UserID, c.Email, nullable(c.PasswordHash), c.DisplayName, nullable(c.GoogleID))
	if isUniqueViolation(err) {
		return auth.ErrEmailInUse
	}
	return err
}

const credentialColumns = `user_id, email, password_hash, display_name, google_id, disabled`

func (r *PostgresRepository) GetCredentialByEmail(ctx context.Context, email string) (*auth.Credential, error) {
	row := r.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE email = $1`, email)
	return scanCredential(row)
}

func (r *PostgresRepository) GetCredentialByGoogleID(ctx context.Context, googleID string) (*auth.Credential, error) {
	row := r.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE google_id = $1`, googleID)
	return scanCredential(row)
}

func (r *PostgresRepository) LinkGoogleAccount(ctx context.Context, userID, googleID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE credentials SET google_id = $2 WHERE user_id = $1`, userID, googleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var c auth.Credential
	var passwordHash, googleID *string
	err := row.Scan(&c.UserID, &c.Email, &passwordHash, &c.DisplayName, &googleID, &c.Disabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	if passwordHash != nil {
		c.PasswordHash = *passwordHash
	}
	if googleID != nil {
		c.GoogleID = *googleID
	}
	return &c, nil
}

// Sessions

const sessionColumns = `id, user_id, email, device_info, ip_address, user_agent, fcm_token, is_active, created_at, expires_at, last_activity_at`

func (r *PostgresRepository) CreateSession(ctx context.Context, params domain.CreateSessionParams) (*domain.AuthSession, error) {
	query := `
		INSERT INTO sessions (user_id, email, device_info, ip_address, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + sessionColumns
	row := r.db.QueryRow(ctx, query,
		params.UserID,
		params.Email,
		params.DeviceInfo,
		params.IPAddress,
		params.UserAgent,
		params.ExpiresAt,
	)
	return scanSession(row)
}

func (r *PostgresRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.AuthSession, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *PostgresRepository) TouchSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) DeactivateSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) DeactivateUserSessions(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresRepository) UpdateSessionFCMToken(ctx context.Context, sessionID uuid.UUID, fcmToken string) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET fcm_token = $2 WHERE id = $1 AND is_active = TRUE`, sessionID, fcmToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.AuthSession, error) {
	var s domain.AuthSession
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Email,
		&s.DeviceInfo,
		&s.IPAddress,
		&s.UserAgent,
		&s.FCMToken,
		&s.IsActive,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Refresh tokens

const refreshTokenColumns = `id, user_id, session_id, token_hash, expires_at, revoked, revoked_at, created_at`

func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, params domain.CreateRefreshTokenParams) (*domain.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (user_id, session_id, token_hash, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + refreshTokenColumns
	row := r.db.QueryRow(ctx, query, params.UserID, params.SessionID, params.TokenHash, params.ExpiresAt)
	return scanRefreshToken(row)
}

// GetRefreshTokenByHash returns unexpired tokens, revoked ones included, so
// that reuse of a rotated token can be detected.
func (r *PostgresRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1 AND expires_at > NOW()`
	return scanRefreshToken(r.db.QueryRow(ctx, query, hash))
}

func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) RevokeSessionRefreshTokens(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE session_id = $1 AND revoked = FALSE`, sessionID)
	return err
}

func (r *PostgresRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`, userID)
	return err
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SessionID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CleanupExpired removes dead tokens and deactivates expired sessions.
func (r *PostgresRepository) CleanupExpired(ctx context.Context) error {
	queries := []string{
		`DELETE FROM refresh_tokens WHERE expires_at < NOW() OR (revoked = TRUE AND revoked_at < NOW() - INTERVAL '7 days')`,
		`UPDATE sessions SET is_active = FALSE WHERE expires_at < NOW() AND is_active = TRUE`,
	}
	for _, query := range queries {
		if _, err := r.db.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// StartCleanupWorker runs CleanupExpired every interval until ctx ends.
func (r *PostgresRepository) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.CleanupExpired(ctx); err != nil {
					r.logger.Warn("token cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}
