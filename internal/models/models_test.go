package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestOTPExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	otp := &OTPRequest{ExpiresAt: now}

	assert.False(t, otp.IsExpired(now), "expiry is strict: now == expires_at is still valid")
	assert.False(t, otp.IsExpired(now.Add(-time.Second)))
	assert.True(t, otp.IsExpired(now.Add(time.Nanosecond)))
}

func TestOTPRegisterFailureLocksAfterMaxAttempts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	otp := &OTPRequest{ExpiresAt: now.Add(5 * time.Minute)}

	for i := 0; i < 4; i++ {
		otp.RegisterFailure(now, 5)
		assert.False(t, otp.Locked(5))
		assert.Equal(t, now.Add(5*time.Minute), otp.ExpiresAt)
	}

	otp.RegisterFailure(now, 5)
	assert.True(t, otp.Locked(5))
	assert.Equal(t, now, otp.ExpiresAt)
	assert.True(t, otp.IsExpired(now.Add(time.Millisecond)))
}

func TestCheckoutStatusTransitions(t *testing.T) {
	assert.True(t, CheckoutStatusDraft.CanTransitionTo(CheckoutStatusPending))
	assert.True(t, CheckoutStatusPending.CanTransitionTo(CheckoutStatusPaid))
	assert.True(t, CheckoutStatusPending.CanTransitionTo(CheckoutStatusCancelled))
	assert.False(t, CheckoutStatusPaid.CanTransitionTo(CheckoutStatusPending))
	assert.False(t, CheckoutStatusCancelled.CanTransitionTo(CheckoutStatusPaid))
	assert.False(t, CheckoutStatusPending.CanTransitionTo(CheckoutStatusDraft))

	assert.True(t, CheckoutStatusFailed.IsTerminal())
	assert.False(t, CheckoutStatusPending.IsTerminal())
}

func TestMoneyJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{MustMoney("2230")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total": "2230.00"}`, string(raw))

	var in struct {
		Price Money `json:"price"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price": "990.5"}`), &in))
	assert.Equal(t, "990.50", in.Price.String())

	require.NoError(t, json.Unmarshal([]byte(`{"price": 12}`), &in))
	assert.Equal(t, "12.00", in.Price.String())
}

func TestNewsRecordFlattensTags(t *testing.T) {
	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	article := &NewsArticle{
		ID:          7,
		Slug:        "release",
		Title:       "Release",
		Tags:        datatypes.JSON(`["go","api"]`),
		PublishedAt: &published,
	}

	record := NewsRecord(article)

	assert.Equal(t, "7", record["article_id"])
	assert.Equal(t, "go,api", record["tags"])
	assert.Equal(t, "2024-01-02T03:04:05Z", record["published_at"])
}

func TestJSONOr(t *testing.T) {
	assert.Equal(t, datatypes.JSON(`{}`), JSONOr(nil, `{}`))
	assert.Equal(t, datatypes.JSON(`[]`), JSONOr(datatypes.JSON("null"), `[]`))
	assert.Equal(t, datatypes.JSON(`{"a":1}`), JSONOr(datatypes.JSON(`{"a":1}`), `{}`))
}
