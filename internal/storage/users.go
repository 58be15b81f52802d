package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmailTaken is returned by CreateUser when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

const userColumns = `id, email, display_name, photo_url, provider, password_hash, created_at`

// CreateUser inserts a user; the email is stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	u.ID = newID()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = s.stamp()
	if u.Provider == "" {
		u.Provider = "password"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.DisplayName, u.PhotoURL, u.Provider, u.PasswordHash, formatTime(u.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (User, error) {
	var u User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Provider, &u.PasswordHash, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// UpdateUserProfile sets display name and photo URL.
func (s *Store) UpdateUserProfile(ctx context.Context, id, displayName, photoURL string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET display_name = ?, photo_url = ? WHERE id = ?`, displayName, photoURL, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		sess.ID, sess.UserID, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt),
	)
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	var createdAt, expiresAt, revokedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked_at FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &createdAt, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return Session{}, err
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return Session{}, err
	}
	if sess.RevokedAt, err = parseTime(revokedAt); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// RevokeSession marks a session as signed out. Revoking twice is not an error.
func (s *Store) RevokeSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at = ''`, formatTime(s.stamp()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// --- Password resets ---

func (s *Store) CreatePasswordReset(ctx context.Context, r PasswordReset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO password_resets (code, user_id, expires_at) VALUES (?, ?, ?)`,
		r.Code, r.UserID, formatTime(r.ExpiresAt),
	)
	return err
}

func (s *Store) GetPasswordReset(ctx context.Context, code string) (PasswordReset, error) {
	var r PasswordReset
	var expiresAt, usedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT code, user_id, expires_at, used_at FROM password_resets WHERE code = ?`, code,
	).Scan(&r.Code, &r.UserID, &expiresAt, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PasswordReset{}, ErrNotFound
	}
	if err != nil {
		return PasswordReset{}, err
	}
	if r.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return PasswordReset{}, err
	}
	if r.UsedAt, err = parseTime(usedAt); err != nil {
		return PasswordReset{}, err
	}
	return r, nil
}

// ConsumePasswordReset marks an unused code as used and sets the new
// password hash in one transaction. A code that was already used reports
// ErrNotFound.
func (s *Store) ConsumePasswordReset(ctx context.Context, code, passwordHash string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset transaction: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM password_resets WHERE code = ? AND used_at = ''`, code).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE password_resets SET used_at = ? WHERE code = ?`, formatTime(at), code); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, userID)
	if err != nil {
		return err
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	return tx.Commit()
}
