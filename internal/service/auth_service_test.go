package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/models"
	"storefront/internal/store"
)

type fakeAuthStore struct {
	mu    sync.Mutex
	otps  map[string]*models.OTPRequest
	users map[string]*models.User
	next  int64
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{otps: map[string]*models.OTPRequest{}, users: map[string]*models.User{}}
}

func (f *fakeAuthStore) UpsertOTP(_ context.Context, email, code string, now, expiresAt time.Time) (*models.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.otps[email]
	if !ok {
		f.next++
		otp = &models.OTPRequest{ID: f.next, Email: email}
		f.otps[email] = otp
	}
	otp.Code, otp.CreatedAt, otp.ExpiresAt, otp.Attempts, otp.LastSentAt = code, now, expiresAt, 0, now
	cp := *otp
	return &cp, nil
}

func (f *fakeAuthStore) GetOTPByEmail(_ context.Context, email string) (*models.OTPRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.otps[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *otp
	return &cp, nil
}

func (f *fakeAuthStore) SaveOTPAttempts(_ context.Context, otp *models.OTPRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.otps[otp.Email]
	if !ok {
		return store.ErrNotFound
	}
	stored.Attempts = otp.Attempts
	stored.ExpiresAt = otp.ExpiresAt
	return nil
}

func (f *fakeAuthStore) DeleteOTP(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for email, otp := range f.otps {
		if otp.ID == id {
			delete(f.otps, email)
		}
	}
	return nil
}

func (f *fakeAuthStore) GetOrCreateUserByEmail(_ context.Context, email string) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[email]; ok {
		return u, false, nil
	}
	f.next++
	u := &models.User{ID: f.next, Email: email, Username: email, IsActive: true, Role: models.RoleCustomer}
	f.users[email] = u
	return u, true, nil
}

func (f *fakeAuthStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeMailer struct {
	sent map[string]string
	err  error
}

func (m *fakeMailer) SendCode(_ context.Context, email, code string) error {
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[email] = code
	return m.err
}

func newAuthFixture() (*AuthService, *fakeAuthStore, *fakeMailer, *time.Time) {
	st := newFakeAuthStore()
	mailer := &fakeMailer{}
	tokens := NewTokenIssuer("secret", 30*time.Minute, 14*24*time.Hour)
	svc := NewAuthService(st, mailer, tokens, 5*time.Minute, 3)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	tokens.now = func() time.Time { return now }
	svc.newCode = func() (string, error) { return "123456", nil }
	return svc, st, mailer, &now
}

func TestIssueCode(t *testing.T) {
	svc, st, mailer, now := newAuthFixture()

	require.NoError(t, svc.IssueCode(context.Background(), "  User@Example.com "))

	otp := st.otps["user@example.com"]
	require.NotNil(t, otp)
	assert.Equal(t, "123456", otp.Code)
	assert.Equal(t, now.Add(5*time.Minute), otp.ExpiresAt)
	assert.Equal(t, "123456", mailer.sent["user@example.com"])
}

func TestIssueCodeMailFailureIsSwallowed(t *testing.T) {
	svc, st, mailer, _ := newAuthFixture()
	mailer.err = errors.New("smtp down")

	require.NoError(t, svc.IssueCode(context.Background(), "user@example.com"))
	assert.Contains(t, st.otps, "user@example.com")
}

func TestConfirmSuccess(t *testing.T) {
	svc, st, _, _ := newAuthFixture()
	require.NoError(t, svc.IssueCode(context.Background(), "user@example.com"))

	sess, err := svc.Confirm(context.Background(), "user@example.com", "123456")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Access)
	assert.NotEmpty(t, sess.Refresh)
	assert.Equal(t, "user@example.com", sess.User.Email)
	assert.NotContains(t, st.otps, "user@example.com", "used code is deleted")

	p, err := svc.tokens.Verify(sess.Access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, p.UserID)
}

func TestConfirmUnknownEmail(t *testing.T) {
	svc, _, _, _ := newAuthFixture()

	_, err := svc.Confirm(context.Background(), "nobody@example.com", "123456")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
}

func TestConfirmExpired(t *testing.T) {
	svc, _, _, now := newAuthFixture()
	require.NoError(t, svc.IssueCode(context.Background(), "user@example.com"))

	*now = now.Add(5*time.Minute + time.Second)
	_, err := svc.Confirm(context.Background(), "user@example.com", "123456")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "code")
}

func TestConfirmLocksAfterMaxAttempts(t *testing.T) {
	svc, st, _, _ := newAuthFixture()
	require.NoError(t, svc.IssueCode(context.Background(), "user@example.com"))

	for i := 0; i < 3; i++ {
		_, err := svc.Confirm(context.Background(), "user@example.com", "000000")
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
	}
	assert.Equal(t, 3, st.otps["user@example.com"].Attempts)

	_, err := svc.Confirm(context.Background(), "user@example.com", "123456")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve, "correct code is refused once locked")
	assert.Contains(t, ve.Fields, "code")
	assert.Empty(t, st.users)
}

func TestRefresh(t *testing.T) {
	svc, _, _, _ := newAuthFixture()
	require.NoError(t, svc.IssueCode(context.Background(), "user@example.com"))
	sess, err := svc.Confirm(context.Background(), "user@example.com", "123456")
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), sess.Refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Access)

	_, err = svc.Refresh(context.Background(), sess.Access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token cannot be used to refresh")
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.Regexp(t, `^[0-9]{6}$`, code)
	}
}
