// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/observability"
	"github.com/holomush/codeauth/internal/token"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CheckEmailAvailability(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) RequestSignup(ctx context.Context, data auth.SignupData) error {
	return m.Called(ctx, data).Error(0)
}

func (m *mockService) RequestSignin(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockService) VerifyCode(ctx context.Context, email, code string) (*auth.TokenPair, error) {
	args := m.Called(ctx, email, code)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *mockService) ValidateToken(ctx context.Context, accessToken string) (*token.Payload, error) {
	args := m.Called(ctx, accessToken)
	p, _ := args.Get(0).(*token.Payload)
	return p, args.Error(1)
}

func (m *mockService) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

func (m *mockService) Signout(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *mockService) SigninWithPassword(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	args := m.Called(ctx, email, password)
	pair, _ := args.Get(0).(*auth.TokenPair)
	return pair, args.Error(1)
}

var testPair = &auth.TokenPair{AccessToken: "access.jwt", RefreshToken: "refresh.jwt"}

type testEnv struct {
	svc     *mockService
	router  *gin.Engine
	logs    *bytes.Buffer
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &mockService{}
	t.Cleanup(func() { svc.AssertExpectations(t) })

	logs := &bytes.Buffer{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	router := NewRouter(Options{
		Service: svc,
		Metrics: metrics,
		Logger:  slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return &testEnv{svc: svc, router: router, logs: logs, metrics: metrics}
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/v1/healthcheck", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestCheckEmail(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("CheckEmailAvailability", mock.Anything, "a@x.com").Return(true, nil).Once()
	env.svc.On("CheckEmailAvailability", mock.Anything, "b@x.com").Return(false, nil).Once()

	w := env.do(http.MethodGet, "/v1/auth/check_email?email=a@x.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["email_availability"])

	w = env.do(http.MethodGet, "/v1/auth/check_email?email=b@x.com", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["email_availability"])

	w = env.do(http.MethodGet, "/v1/auth/check_email?email=nope", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("RequestSignup", mock.Anything, auth.SignupData{
		Email: "a@x.com", FirstName: "Ada", LastName: "Lovelace",
	}).Return(nil).Once()

	w := env.do(http.MethodPost, "/v1/auth/signup", `{"email":"a@x.com","first_name":"Ada","last_name":"Lovelace"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, decode(t, w)["status"])
}

func TestSignup_Validation(t *testing.T) {
	long := strings.Repeat("x", auth.MaxNameLength+1)
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"email":`},
		{"missing last name", `{"email":"a@x.com","first_name":"Ada"}`},
		{"bad email", `{"email":"a-at-x","first_name":"Ada","last_name":"L"}`},
		{"long name", fmt.Sprintf(`{"email":"a@x.com","first_name":%q,"last_name":"L"}`, long)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/v1/auth/signup", tt.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.NotEmpty(t, decode(t, w)["detail"])
		})
	}
}

func TestSignup_EmailAlreadyExists(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("RequestSignup", mock.Anything, mock.Anything).
		Return(oops.Code("EMAIL_ALREADY_EXISTS").Wrap(auth.ErrEmailAlreadyExists)).Once()

	w := env.do(http.MethodPost, "/v1/auth/signup", `{"email":"a@x.com","first_name":"Ada","last_name":"L"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email already exists.", decode(t, w)["detail"])
	assert.Contains(t, env.logs.String(), `"code":"EMAIL_ALREADY_EXISTS"`)
}

func TestSignin(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("RequestSignin", mock.Anything, "a@x.com").Return(nil).Once()
	env.svc.On("RequestSignin", mock.Anything, "ghost@x.com").Return(auth.ErrEmailNotFound).Once()

	w := env.do(http.MethodPost, "/v1/auth/signin", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = env.do(http.MethodPost, "/v1/auth/signin", `{"email":"ghost@x.com"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Email not found", decode(t, w)["detail"])
}

func TestSigninWithPassword(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("SigninWithPassword", mock.Anything, "admin@x.com", "hunter2").Return(testPair, nil).Once()
	env.svc.On("SigninWithPassword", mock.Anything, "admin@x.com", "wrong").Return(nil, auth.ErrUnauthorizedUser).Once()

	w := env.do(http.MethodPost, "/v1/auth/signin/password", `{"email":"admin@x.com","password":"hunter2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "access.jwt", body["access_token"])
	assert.Equal(t, "refresh.jwt", body["refresh_token"])

	w = env.do(http.MethodPost, "/v1/auth/signin/password", `{"email":"admin@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", decode(t, w)["detail"])
}

func TestVerifyCode(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("VerifyCode", mock.Anything, "a@x.com", "482913").Return(testPair, nil).Once()
	env.svc.On("VerifyCode", mock.Anything, "a@x.com", "000000").Return(nil, auth.ErrVerificationCodeIncorrect).Once()

	w := env.do(http.MethodPost, "/v1/auth/verify-code", `{"email":"a@x.com","verification_code":"482913"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "access.jwt", decode(t, w)["access_token"])

	w = env.do(http.MethodPost, "/v1/auth/verify-code", `{"email":"a@x.com","verification_code":"000000"}`)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)
	assert.Equal(t, "Verification code is incorrect", decode(t, w)["detail"])
}

func TestValidate(t *testing.T) {
	env := newTestEnv(t)
	issued := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	env.svc.On("ValidateToken", mock.Anything, "good").Return(&token.Payload{
		Subject: "7", SessionID: "01HX", Role: auth.RoleUser,
		IssuedAt: issued, ExpiresAt: issued.Add(30 * time.Minute),
	}, nil).Once()
	env.svc.On("ValidateToken", mock.Anything, "old").Return(nil, auth.ErrTokenExpired).Once()

	w := env.do(http.MethodPost, "/v1/auth/validate", `{"access_token":"good"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "7", body["sub"])
	assert.Equal(t, "01HX", body["jid"])
	assert.Equal(t, "User", body["role"])
	assert.Equal(t, false, body["is_refresh"])
	assert.InDelta(t, float64(issued.Unix()), body["iat"], 0)

	w = env.do(http.MethodPost, "/v1/auth/validate", `{"access_token":"old"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token expired", decode(t, w)["detail"])
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("RefreshToken", mock.Anything, "r1").Return(testPair, nil).Once()
	env.svc.On("RefreshToken", mock.Anything, "r0").Return(nil, auth.ErrInvalidToken).Once()

	w := env.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"r1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refresh.jwt", decode(t, w)["refresh_token"])

	w = env.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"r0"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid token", decode(t, w)["detail"])

	w = env.do(http.MethodPost, "/v1/auth/refresh", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSignout(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("ValidateToken", mock.Anything, "a1").Return(&token.Payload{Subject: "7", SessionID: "S1"}, nil).Once()
	env.svc.On("Signout", mock.Anything, "S1").Return(true, nil).Once()

	w := env.do(http.MethodPost, "/v1/auth/signout", "", "Authorization", "Bearer a1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["status"])
}

func TestSignout_AlreadyGone(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("ValidateToken", mock.Anything, "a1").Return(&token.Payload{SessionID: "S1"}, nil).Once()
	env.svc.On("Signout", mock.Anything, "S1").Return(false, nil).Once()

	w := env.do(http.MethodPost, "/v1/auth/signout", "", "Authorization", "bearer a1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["status"])
}

func TestSignout_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"empty token", "Bearer  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do(http.MethodPost, "/v1/auth/signout", "", "Authorization", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid token", decode(t, w)["detail"])
		})
	}

	t.Run("revoked token", func(t *testing.T) {
		env := newTestEnv(t)
		env.svc.On("ValidateToken", mock.Anything, "a1").Return(nil, auth.ErrInvalidToken).Once()
		w := env.do(http.MethodPost, "/v1/auth/signout", "", "Authorization", "Bearer a1")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestInternalErrorHidesCause(t *testing.T) {
	env := newTestEnv(t)
	cause := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	env.svc.On("RequestSignin", mock.Anything, "a@x.com").
		Return(oops.Code("AUTH_INTERNAL").Wrap(fmt.Errorf("%w: %w", auth.ErrInternal, cause))).Once()

	w := env.do(http.MethodPost, "/v1/auth/signin", `{"email":"a@x.com"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["detail"])
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
	assert.Contains(t, env.logs.String(), "connection refused", "cause is logged")
}

func TestUnknownErrorIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.svc.On("RefreshToken", mock.Anything, "r").Return(nil, errors.New("boom")).Once()

	w := env.do(http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"r"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["detail"])
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer  abc ", "abc", true},
		{"Bearer", "", false},
		{"Token abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
