package service

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
	"storefront/internal/store"
)

const defaultCountry = "Россия"

// UserStore is the persistence behind users and recipients.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context, opts store.ListOptions) ([]models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error

	ListRecipients(ctx context.Context, userID *int64, opts store.ListOptions) ([]models.Recipient, error)
	GetRecipient(ctx context.Context, id int64, userID *int64) (*models.Recipient, error)
	CreateRecipient(ctx context.Context, r *models.Recipient) error
	UpdateRecipient(ctx context.Context, r *models.Recipient) error
	DeleteRecipient(ctx context.Context, id int64, userID *int64) error
}

type UserService struct {
	store UserStore
}

func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

// UserInput is the staff write form of a user. An empty Password keeps the
// stored hash.
type UserInput struct {
	Email           string `json:"email" binding:"required,email"`
	Username        string `json:"username"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Role            string `json:"role" binding:"omitempty,oneof=admin manager customer"`
	IsActive        *bool  `json:"is_active"`
	IsStaff         bool   `json:"is_staff"`
	IsEmailVerified bool   `json:"is_email_verified"`
	Password        string `json:"password" binding:"omitempty,min=8"`
}

func (in *UserInput) apply(u *models.User) error {
	u.Email = normalizeEmail(in.Email)
	u.Username = in.Username
	if u.Username == "" {
		u.Username = u.Email
	}
	u.FirstName = in.FirstName
	u.LastName = in.LastName
	u.Role = in.Role
	if u.Role == "" {
		u.Role = models.RoleCustomer
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	u.IsStaff = in.IsStaff
	u.IsEmailVerified = in.IsEmailVerified

	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Users

func (s *UserService) Me(ctx context.Context, p Principal) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, p.UserID)
	return u, storeErr(err)
}

func (s *UserService) ListUsers(ctx context.Context, opts store.ListOptions) ([]models.User, error) {
	return s.store.ListUsers(ctx, opts)
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	return u, storeErr(err)
}

func (s *UserService) CreateUser(ctx context.Context, in *UserInput) (*models.User, error) {
	u := &models.User{IsActive: true}
	if err := in.apply(u); err != nil {
		return nil, err
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (s *UserService) UpdateUser(ctx context.Context, id int64, in *UserInput) (*models.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if err := in.apply(u); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUser(ctx, u); err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	return storeErr(s.store.DeleteUser(ctx, id))
}

// Recipients

// RecipientInput is the write form of a recipient. UserID is honoured only
// on the staff endpoints.
type RecipientInput struct {
	UserID       int64  `json:"user"`
	FullName     string `json:"full_name" binding:"required,max=255"`
	Phone        string `json:"phone" binding:"required,max=32"`
	Country      string `json:"country"`
	City         string `json:"city" binding:"required"`
	PostalCode   string `json:"postal_code"`
	AddressLine1 string `json:"address_line1" binding:"required"`
	AddressLine2 string `json:"address_line2"`
	Notes        string `json:"notes"`
}

func (in *RecipientInput) apply(r *models.Recipient) {
	r.FullName = in.FullName
	r.Phone = in.Phone
	r.Country = in.Country
	if r.Country == "" {
		r.Country = defaultCountry
	}
	r.City = in.City
	r.PostalCode = in.PostalCode
	r.AddressLine1 = in.AddressLine1
	r.AddressLine2 = in.AddressLine2
	r.Notes = in.Notes
}

// scope limits recipient access to the caller unless staff is set.
func scope(p Principal, staff bool) *int64 {
	if staff && p.IsStaff {
		return nil
	}
	id := p.UserID
	return &id
}

func (s *UserService) ListRecipients(ctx context.Context, p Principal, staff bool, opts store.ListOptions) ([]models.Recipient, error) {
	return s.store.ListRecipients(ctx, scope(p, staff), opts)
}

func (s *UserService) GetRecipient(ctx context.Context, p Principal, staff bool, id int64) (*models.Recipient, error) {
	r, err := s.store.GetRecipient(ctx, id, scope(p, staff))
	return r, storeErr(err)
}

func (s *UserService) CreateRecipient(ctx context.Context, p Principal, staff bool, in *RecipientInput) (*models.Recipient, error) {
	r := &models.Recipient{UserID: p.UserID}
	if staff && p.IsStaff {
		if in.UserID == 0 {
			return nil, NewValidationError("user", "This field is required.")
		}
		r.UserID = in.UserID
	}
	in.apply(r)
	if err := s.store.CreateRecipient(ctx, r); err != nil {
		return nil, storeErr(err)
	}
	return r, nil
}

func (s *UserService) UpdateRecipient(ctx context.Context, p Principal, staff bool, id int64, in *RecipientInput) (*models.Recipient, error) {
	r, err := s.store.GetRecipient(ctx, id, scope(p, staff))
	if err != nil {
		return nil, storeErr(err)
	}
	if staff && p.IsStaff && in.UserID != 0 {
		r.UserID = in.UserID
	}
	in.apply(r)
	if err := s.store.UpdateRecipient(ctx, r); err != nil {
		return nil, storeErr(err)
	}
	return r, nil
}

func (s *UserService) DeleteRecipient(ctx context.Context, p Principal, staff bool, id int64) error {
	return storeErr(s.store.DeleteRecipient(ctx, id, scope(p, staff)))
}
