// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/codeauth/internal/auth"
	"github.com/holomush/codeauth/internal/observability"
	"github.com/holomush/codeauth/internal/token"
	"github.com/holomush/codeauth/pkg/errutil"
)

type handler struct {
	svc     AuthService
	metrics *observability.Metrics
	logger  *slog.Logger
}

type errorBody struct {
	Detail string `json:"detail"`
}

type statusBody struct {
	Status bool `json:"status"`
}

type emailAvailabilityBody struct {
	EmailAvailability bool `json:"email_availability"`
}

type signupRequest struct {
	Email     string  `json:"email" binding:"required"`
	FirstName string  `json:"first_name" binding:"required"`
	LastName  string  `json:"last_name" binding:"required"`
	Phone     *string `json:"phone"`
}

type signinRequest struct {
	Email string `json:"email" binding:"required"`
}

type passwordSigninRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type verifyCodeRequest struct {
	Email            string `json:"email" binding:"required"`
	VerificationCode string `json:"verification_code" binding:"required"`
}

type accessTokenRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// payloadBody is a validated token payload. Times are Unix seconds.
type payloadBody struct {
	Subject   string `json:"sub"`
	SessionID string `json:"jid"`
	Role      string `json:"role"`
	IsRefresh bool   `json:"is_refresh"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func newPayloadBody(p *token.Payload) payloadBody {
	return payloadBody{
		Subject:   p.Subject,
		SessionID: p.SessionID,
		Role:      p.Role,
		IsRefresh: p.IsRefresh,
		IssuedAt:  p.IssuedAt.Unix(),
		ExpiresAt: p.ExpiresAt.Unix(),
	}
}

func healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) checkEmail(c *gin.Context) {
	email := c.Query("email")
	if err := auth.ValidateEmail(email); err != nil {
		h.unprocessable(c, err)
		return
	}

	available, err := h.svc.CheckEmailAvailability(c.Request.Context(), email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, emailAvailabilityBody{EmailAvailability: available})
}

func (h *handler) signup(c *gin.Context) {
	var req signupRequest
	if !h.bind(c, &req) {
		return
	}
	data := auth.SignupData{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if err := data.Validate(); err != nil {
		h.unprocessable(c, err)
		return
	}

	if err := h.svc.RequestSignup(c.Request.Context(), data); err != nil {
		h.fail(c, err)
		return
	}
	h.codeIssued("signup")
	c.JSON(http.StatusAccepted, statusBody{Status: true})
}

func (h *handler) signin(c *gin.Context) {
	var req signinRequest
	if !h.bind(c, &req) {
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		h.unprocessable(c, err)
		return
	}

	if err := h.svc.RequestSignin(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	h.codeIssued("signin")
	c.JSON(http.StatusAccepted, statusBody{Status: true})
}

func (h *handler) signinWithPassword(c *gin.Context) {
	var req passwordSigninRequest
	if !h.bind(c, &req) {
		return
	}

	pair, err := h.svc.SigninWithPassword(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *handler) verifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if !h.bind(c, &req) {
		return
	}
	if err := auth.ValidateEmail(req.Email); err != nil {
		h.unprocessable(c, err)
		return
	}

	pair, err := h.svc.VerifyCode(c.Request.Context(), req.Email, req.VerificationCode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h *handler) validate(c *gin.Context) {
	var req accessTokenRequest
	if !h.bind(c, &req) {
		return
	}

	payload, err := h.svc.ValidateToken(c.Request.Context(), req.AccessToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newPayloadBody(payload))
}

func (h *handler) refresh(c *gin.Context) {
	var req refreshTokenRequest
	if !h.bind(c, &req) {
		return
	}

	pair, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// signout revokes the session of the bearer access token.
func (h *handler) signout(c *gin.Context) {
	raw, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.fail(c, oops.Code(auth.ErrInvalidToken.Code).With("reason", "missing bearer token").Wrap(auth.ErrInvalidToken))
		return
	}

	payload, err := h.svc.ValidateToken(c.Request.Context(), raw)
	if err != nil {
		h.fail(c, err)
		return
	}

	existed, err := h.svc.Signout(c.Request.Context(), payload.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, statusBody{Status: existed})
}

func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (h *handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.DebugContext(c.Request.Context(), "invalid request body", "route", routeOf(c), "error", err)
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorBody{Detail: "Invalid request body"})
		return false
	}
	return true
}

// unprocessable answers 422 with the validation message.
func (*handler) unprocessable(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
}

// fail answers with the status and detail of the error kind. Internal
// faults are logged with their cause and answered with a generic detail.
func (h *handler) fail(c *gin.Context, err error) {
	kind := auth.KindOf(err)
	if kind == auth.ErrInternal {
		errutil.LogError(h.logger, "auth request failed", err)
	} else {
		h.logger.InfoContext(c.Request.Context(), "auth request rejected",
			"route", routeOf(c),
			"code", kind.Code)
		if h.metrics != nil {
			h.metrics.RecordAuthFailure(kind.Code)
		}
	}
	c.AbortWithStatusJSON(kind.Status, errorBody{Detail: kind.Detail})
}

func (h *handler) codeIssued(purpose string) {
	if h.metrics != nil {
		h.metrics.RecordCodeIssued(purpose)
	}
}
