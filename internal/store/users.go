package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
)

const userColumns = `id, email, username, first_name, last_name, role, is_active, is_staff,
	is_email_verified, password_hash, date_joined`

var userList = listQuery{
	searchCols:   []string{"email", "first_name", "last_name"},
	orderCols:    map[string]string{"date_joined": "date_joined", "email": "email"},
	defaultOrder: "date_joined DESC",
}

// GetUserByID retrieves a user by id
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetOrCreateUserByEmail returns the user with the given email, creating a
// customer account with username = email when none exists.
func (s *Store) GetOrCreateUserByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `
		INSERT INTO users (email, username)
		VALUES ($1, $1)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+userColumns, email)
	if err == nil {
		return &u, true, nil
	}
	if !errors.Is(translate(err), ErrNotFound) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	existing, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) ListUsers(ctx context.Context, opts ListOptions) ([]models.User, error) {
	query, args := userList.apply(`SELECT `+userColumns+` FROM users WHERE TRUE`, nil, opts)
	users := []models.User{}
	if err := s.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return namedGet(ctx, s.db, u, `
		INSERT INTO users (email, username, first_name, last_name, role, is_active, is_staff,
			is_email_verified, password_hash)
		VALUES (:email, :username, :first_name, :last_name, :role, :is_active, :is_staff,
			:is_email_verified, :password_hash)
		RETURNING `+userColumns, u)
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	return namedGet(ctx, s.db, u, `
		UPDATE users SET email = :email, username = :username, first_name = :first_name,
			last_name = :last_name, role = :role, is_active = :is_active, is_staff = :is_staff,
			is_email_verified = :is_email_verified, password_hash = :password_hash
		WHERE id = :id
		RETURNING `+userColumns, u)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return requireAffected(execAffected(ctx, s, `DELETE FROM users WHERE id = $1`, id))
}

// UpsertOTP stores a fresh code for email, resetting the attempt counter.
func (s *Store) UpsertOTP(ctx context.Context, email, code string, now, expiresAt time.Time) (*models.OTPRequest, error) {
	var otp models.OTPRequest
	err := s.db.GetContext(ctx, &otp, `
		INSERT INTO otp_requests (email, code, created_at, expires_at, attempts, last_sent_at)
		VALUES ($1, $2, $3, $4, 0, $3)
		ON CONFLICT (email) DO UPDATE
		SET code = EXCLUDED.code, created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at, attempts = 0, last_sent_at = EXCLUDED.last_sent_at
		RETURNING id, email, code, created_at, expires_at, attempts, last_sent_at`,
		email, code, now, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store otp: %w", err)
	}
	return &otp, nil
}

func (s *Store) GetOTPByEmail(ctx context.Context, email string) (*models.OTPRequest, error) {
	var otp models.OTPRequest
	err := s.db.GetContext(ctx, &otp, `
		SELECT id, email, code, created_at, expires_at, attempts, last_sent_at
		FROM otp_requests WHERE email = $1`, email)
	if err != nil {
		return nil, translate(err)
	}
	return &otp, nil
}

// SaveOTPAttempts persists the attempt counter and expiry after a failed
// confirmation.
func (s *Store) SaveOTPAttempts(ctx context.Context, otp *models.OTPRequest) error {
	return requireAffected(execAffected(ctx, s,
		`UPDATE otp_requests SET attempts = $2, expires_at = $3 WHERE id = $1`,
		otp.ID, otp.Attempts, otp.ExpiresAt))
}

func (s *Store) DeleteOTP(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM otp_requests WHERE id = $1`, id)
	return err
}

const recipientSelect = `
	SELECT r.id, r.user_id, u.email AS user_email, r.full_name, r.phone, r.country, r.city,
		r.postal_code, r.address_line1, r.address_line2, r.notes, r.created_at, r.updated_at
	FROM recipients r JOIN users u ON u.id = r.user_id`

var recipientList = listQuery{
	searchCols:   []string{"r.full_name", "r.city", "u.email"},
	orderCols:    map[string]string{"created_at": "r.created_at", "full_name": "r.full_name"},
	defaultOrder: "r.created_at DESC",
}

// ListRecipients lists recipients, restricted to one user when userID is set.
func (s *Store) ListRecipients(ctx context.Context, userID *int64, opts ListOptions) ([]models.Recipient, error) {
	query, args := recipientList.apply(recipientSelect+` WHERE ($1::bigint IS NULL OR r.user_id = $1)`,
		[]interface{}{userID}, opts)
	recipients := []models.Recipient{}
	if err := s.db.SelectContext(ctx, &recipients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	return recipients, nil
}

// GetRecipient fetches a recipient, restricted to one user when userID is set.
func (s *Store) GetRecipient(ctx context.Context, id int64, userID *int64) (*models.Recipient, error) {
	var r models.Recipient
	err := s.db.GetContext(ctx, &r, recipientSelect+` WHERE r.id = $1 AND ($2::bigint IS NULL OR r.user_id = $2)`,
		id, userID)
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) CreateRecipient(ctx context.Context, r *models.Recipient) error {
	var id int64
	err := namedGet(ctx, s.db, &id, `
		INSERT INTO recipients (user_id, full_name, phone, country, city, postal_code,
			address_line1, address_line2, notes)
		VALUES (:user_id, :full_name, :phone, :country, :city, :postal_code,
			:address_line1, :address_line2, :notes)
		RETURNING id`, r)
	if err != nil {
		return err
	}
	return s.reloadRecipient(ctx, id, r)
}

func (s *Store) UpdateRecipient(ctx context.Context, r *models.Recipient) error {
	err := requireAffected(namedExec(ctx, s.db, `
		UPDATE recipients SET user_id = :user_id, full_name = :full_name, phone = :phone,
			country = :country, city = :city, postal_code = :postal_code,
			address_line1 = :address_line1, address_line2 = :address_line2, notes = :notes,
			updated_at = NOW()
		WHERE id = :id`, r))
	if err != nil {
		return err
	}
	return s.reloadRecipient(ctx, r.ID, r)
}

func (s *Store) reloadRecipient(ctx context.Context, id int64, dest *models.Recipient) error {
	fresh, err := s.GetRecipient(ctx, id, nil)
	if err != nil {
		return err
	}
	*dest = *fresh
	return nil
}

// DeleteRecipient removes a recipient, restricted to one user when userID is set.
func (s *Store) DeleteRecipient(ctx context.Context, id int64, userID *int64) error {
	return requireAffected(execAffected(ctx, s,
		`DELETE FROM recipients WHERE id = $1 AND ($2::bigint IS NULL OR user_id = $2)`, id, userID))
}

func execAffected(ctx context.Context, s *Store, query string, args ...interface{}) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, translate(err)
	}
	return res.RowsAffected()
}
