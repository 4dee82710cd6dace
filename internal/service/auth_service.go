package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
)

// AuthStore is the persistence OTP login needs.
type AuthStore interface {
	UpsertOTP(ctx context.Context, email, code string, now, expiresAt time.Time) (*models.OTPRequest, error)
	GetOTPByEmail(ctx context.Context, email string) (*models.OTPRequest, error)
	SaveOTPAttempts(ctx context.Context, otp *models.OTPRequest) error
	DeleteOTP(ctx context.Context, id int64) error
	GetOrCreateUserByEmail(ctx context.Context, email string) (*models.User, bool, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// AuthService issues and confirms one-time login codes.
type AuthService struct {
	store       AuthStore
	mailer      Mailer
	tokens      *TokenIssuer
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	newCode     func() (string, error)
	logger      *zap.Logger
}

func NewAuthService(store AuthStore, mailer Mailer, tokens *TokenIssuer, ttl time.Duration, maxAttempts int) *AuthService {
	return &AuthService{
		store:       store,
		mailer:      mailer,
		tokens:      tokens,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		newCode:     generateCode,
		logger:      util.GetLogger(),
	}
}

// Session is the result of a successful confirmation or refresh.
type Session struct {
	Access  string       `json:"access"`
	Refresh string       `json:"-"`
	User    *models.User `json:"user,omitempty"`
}

type LoginRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ConfirmRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IssueCode stores a fresh 6-digit code for email and mails it. Mail
// failures are logged, the code stays valid.
func (s *AuthService) IssueCode(ctx context.Context, email string) error {
	ctx, span := util.StartSpan(ctx, "AuthService.IssueCode")
	defer span.End()

	email = normalizeEmail(email)
	code, err := s.newCode()
	if err != nil {
		return util.SpanError(span, err)
	}

	now := s.now()
	if _, err := s.store.UpsertOTP(ctx, email, code, now, now.Add(s.ttl)); err != nil {
		return util.SpanError(span, err)
	}
	util.OTPIssuedTotal.Inc()

	if err := s.mailer.SendCode(ctx, email, code); err != nil {
		s.logger.Error("Failed to deliver login code", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// Confirm checks code for email. A wrong code counts against the attempt
// budget; once the budget is spent the code is expired.
func (s *AuthService) Confirm(ctx context.Context, email, code string) (*Session, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Confirm")
	defer span.End()

	email = normalizeEmail(email)
	otp, err := s.store.GetOTPByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		util.OTPConfirmTotal.WithLabelValues("unknown_email").Inc()
		return nil, NewValidationError("email", "No login code was requested for this email.")
	}
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	now := s.now()
	if otp.IsExpired(now) || otp.Locked(s.maxAttempts) {
		util.OTPConfirmTotal.WithLabelValues("expired").Inc()
		return nil, NewValidationError("code", "The code has expired. Request a new one.")
	}

	if subtle.ConstantTimeCompare([]byte(otp.Code), []byte(code)) != 1 {
		otp.RegisterFailure(now, s.maxAttempts)
		if err := s.store.SaveOTPAttempts(ctx, otp); err != nil {
			return nil, util.SpanError(span, fmt.Errorf("failed to record attempt: %w", err))
		}
		util.OTPConfirmTotal.WithLabelValues("mismatch").Inc()
		s.logger.Info("Wrong login code",
			zap.String("email", email),
			zap.Int("attempts", otp.Attempts))
		return nil, NewValidationError("code", "Invalid code.")
	}

	user, created, err := s.store.GetOrCreateUserByEmail(ctx, email)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	if err := s.store.DeleteOTP(ctx, otp.ID); err != nil {
		s.logger.Warn("Failed to delete used code", zap.Int64("otp_id", otp.ID), zap.Error(err))
	}

	access, refresh, err := s.tokens.Pair(user)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	util.OTPConfirmTotal.WithLabelValues("ok").Inc()
	s.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.Bool("created", created))

	return &Session{Access: access, Refresh: refresh, User: user}, nil
}

// Refresh exchanges a refresh token for a new access token. The user is
// reloaded so revoked staff rights do not survive a refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	p, err := s.tokens.Verify(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !user.IsActive) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.tokens.Pair(user)
	if err != nil {
		return nil, err
	}
	return &Session{Access: access, Refresh: refresh}, nil
}

var codeSpace = big.NewInt(1000000)

// generateCode returns six uniformly random digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
