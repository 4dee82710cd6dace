package models

import "time"

// User roles
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleCustomer = "customer"
)

type User struct {
	ID              int64     `db:"id" json:"id"`
	Email           string    `db:"email" json:"email"`
	Username        string    `db:"username" json:"username"`
	FirstName       string    `db:"first_name" json:"first_name"`
	LastName        string    `db:"last_name" json:"last_name"`
	Role            string    `db:"role" json:"role"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	IsStaff         bool      `db:"is_staff" json:"is_staff"`
	IsEmailVerified bool      `db:"is_email_verified" json:"is_email_verified"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	DateJoined      time.Time `db:"date_joined" json:"date_joined"`
}

// OTPRequest is the pending one-time login code for an email address.
type OTPRequest struct {
	ID         int64     `db:"id"`
	Email      string    `db:"email"`
	Code       string    `db:"code"`
	CreatedAt  time.Time `db:"created_at"`
	ExpiresAt  time.Time `db:"expires_at"`
	Attempts   int       `db:"attempts"`
	LastSentAt time.Time `db:"last_sent_at"`
}

// IsExpired is true exactly when now is after ExpiresAt.
func (o *OTPRequest) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// RegisterFailure counts a wrong code. Once maxAttempts is reached the code
// is expired immediately.
func (o *OTPRequest) RegisterFailure(now time.Time, maxAttempts int) {
	o.Attempts++
	if o.Attempts >= maxAttempts && o.ExpiresAt.After(now) {
		o.ExpiresAt = now
	}
}

// Locked reports whether the attempt budget is spent.
func (o *OTPRequest) Locked(maxAttempts int) bool {
	return o.Attempts >= maxAttempts
}

type Recipient struct {
	ID           int64     `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user"`
	UserEmail    string    `db:"user_email" json:"user_email"`
	FullName     string    `db:"full_name" json:"full_name"`
	Phone        string    `db:"phone" json:"phone"`
	Country      string    `db:"country" json:"country"`
	City         string    `db:"city" json:"city"`
	PostalCode   string    `db:"postal_code" json:"postal_code"`
	AddressLine1 string    `db:"address_line1" json:"address_line1"`
	AddressLine2 string    `db:"address_line2" json:"address_line2"`
	Notes        string    `db:"notes" json:"notes"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
