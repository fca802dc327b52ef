package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

type MockAuthValidator struct {
	mock.Mock
}

func (m *MockAuthValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func TestTokenAuth_Success(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateToken", mock.Anything, "s3cret").Return("token-1", nil)

	var capturedClient string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedClient = GetClient(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrappedHandler := TokenAuth(mockValidator)(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "token-1", capturedClient)
	mockValidator.AssertExpectations(t)
}

func TestTokenAuth_MissingHeader(t *testing.T) {
	mockValidator := new(MockAuthValidator)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	TokenAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestTokenAuth_InvalidFormat(t *testing.T) {
	mockValidator := new(MockAuthValidator)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()

	TokenAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestTokenAuth_ValidationFails(t *testing.T) {
	mockValidator := new(MockAuthValidator)
	mockValidator.On("ValidateToken", mock.Anything, "wrong").Return("", errors.New("invalid token"))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()

	TokenAuth(mockValidator)(handler).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid api token")
	mockValidator.AssertExpectations(t)
}

func TestStaticTokens(t *testing.T) {
	tokens := StaticTokens{"alpha", "beta"}
	ctx := context.Background()

	client, err := tokens.ValidateToken(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, "token-2", client)

	_, err = tokens.ValidateToken(ctx, "gamma")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIToken)

	_, err = StaticTokens(nil).ValidateToken(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIToken)
}

func TestGetClient_MissingContext(t *testing.T) {
	assert.Equal(t, "", GetClient(context.Background()))
}
