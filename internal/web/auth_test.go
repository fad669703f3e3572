package web

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/domain"
)

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator("s3cret")
	caller := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	valid, err := IssueToken("s3cret", caller, time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", caller, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	wrongSecret, err := IssueToken("other", caller, time.Hour, time.Now())
	require.NoError(t, err)
	notAddress, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: caller.Hex(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", "Bearer " + valid, nil},
		{"missing", "", ErrMissingToken},
		{"not bearer", "Basic " + valid, ErrMissingToken},
		{"expired", "Bearer " + expired, ErrInvalidToken},
		{"wrong secret", "Bearer " + wrongSecret, ErrInvalidToken},
		{"subject not an address", "Bearer " + notAddress, ErrInvalidToken},
		{"alg none", "Bearer " + unsigned, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := auth.Authenticate(req)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, caller, got)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 500, statusFor(errors.New("disk on fire")))
	assert.Equal(t, 503, statusFor(domain.ErrNotInitialized))
	assert.Equal(t, 502, statusFor(fmt.Errorf("%w: pay: %w", domain.ErrLedgerTransferFailed, errors.New("reverted"))))
	assert.Equal(t, 403, statusFor(fmt.Errorf("%w: 0xa1", domain.ErrUnauthorized)))
}
