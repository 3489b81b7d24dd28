package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/plant-maintenance/internal/model"
)

// UserRepo provides data access to the `users` table, including the
// lockout counters and the QR credential columns. All timestamps are
// stored and compared in UTC.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `id, email, password_hash, role, assigned_plant, approval_status, is_active,
	login_attempts, locked_until, last_login_attempt,
	qr_token, qr_token_created_at, qr_token_expires_at, qr_token_last_used,
	created_at, updated_at`

// Create inserts a user and returns its ID. Email is normalized to
// lower case before the insert so the unique index enforces the
// case-insensitive uniqueness rule.
func (r *UserRepo) Create(ctx context.Context, u *model.User) (uint64, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, role, assigned_plant, approval_status, is_active)
		 VALUES (?,?,?,?,?,?)`,
		email, u.PasswordHash, u.Role, u.AssignedPlant, u.ApprovalStatus, u.IsActive)
	if err != nil {
		// MySQL error 1062: duplicate entry on the unique email index.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=? LIMIT 1`, email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=? LIMIT 1`, id)
}

// GetByQRToken fetches a user by its unique QR token value.
func (r *UserRepo) GetByQRToken(ctx context.Context, token string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE qr_token=? LIMIT 1`, token)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg interface{}) (*model.User, error) {
	var (
		u             model.User
		assignedPlant sql.NullString
		lockedUntil   sql.NullTime
		lastAttempt   sql.NullTime
		qrToken       sql.NullString
		qrCreated     sql.NullTime
		qrExpires     sql.NullTime
		qrLastUsed    sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Role, &assignedPlant, &u.ApprovalStatus, &u.IsActive,
		&u.LoginAttempts, &lockedUntil, &lastAttempt,
		&qrToken, &qrCreated, &qrExpires, &qrLastUsed,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u.AssignedPlant = nullStr(assignedPlant)
	u.LockedUntil = nullTime(lockedUntil)
	u.LastLoginAttempt = nullTime(lastAttempt)
	u.QRToken = nullStr(qrToken)
	u.QRTokenCreatedAt = nullTime(qrCreated)
	u.QRTokenExpiresAt = nullTime(qrExpires)
	u.QRTokenLastUsed = nullTime(qrLastUsed)
	return &u, nil
}

// UpdateLockout writes the lockout counters for a user in a single
// statement. Passing lockedUntil=nil clears the lock; lastAttempt=nil
// leaves last_login_attempt untouched apart from being overwritten with
// NULL, so callers always supply it on failure paths.
func (r *UserRepo) UpdateLockout(ctx context.Context, userID uint64, attempts int, lockedUntil, lastAttempt *time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET login_attempts=?, locked_until=?, last_login_attempt=? WHERE id=?`,
		attempts, lockedUntil, lastAttempt, userID)
	return err
}

// SetQRToken stores a freshly generated QR token, replacing any previous
// one. expiresAt nil means the token never expires.
func (r *UserRepo) SetQRToken(ctx context.Context, userID uint64, token string, createdAt time.Time, expiresAt *time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET qr_token=?, qr_token_created_at=?, qr_token_expires_at=?, qr_token_last_used=NULL WHERE id=?`,
		token, createdAt, expiresAt, userID)
	return err
}

// ClearQRToken removes the QR credential from a user.
func (r *UserRepo) ClearQRToken(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET qr_token=NULL, qr_token_created_at=NULL, qr_token_expires_at=NULL, qr_token_last_used=NULL WHERE id=?`,
		userID)
	return err
}

// TouchQRToken stamps qr_token_last_used after a successful QR login.
func (r *UserRepo) TouchQRToken(ctx context.Context, userID uint64, usedAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET qr_token_last_used=? WHERE id=?`, usedAt, userID)
	return err
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
