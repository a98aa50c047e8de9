// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/codeauth/internal/auth"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// call sends body as JSON to path and decodes the JSON response into out.
func call(method, path string, body any, bearer string, out any) int {
	GinkgoHelper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(env.ctx, method, env.server.URL+path, reader)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := env.server.Client().Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		Expect(json.NewDecoder(resp.Body).Decode(out)).To(Succeed())
	}
	return resp.StatusCode
}

func signup(email string) string {
	GinkgoHelper()
	status := call(http.MethodPost, "/v1/auth/signup", map[string]any{
		"email": email, "first_name": "Ada", "last_name": "Lovelace",
	}, "", nil)
	Expect(status).To(Equal(http.StatusAccepted))
	code := env.mail.last(email)
	Expect(code).To(HaveLen(6))
	return code
}

func verify(email, code string) tokenPair {
	GinkgoHelper()
	var pair tokenPair
	status := call(http.MethodPost, "/v1/auth/verify-code", map[string]any{
		"email": email, "verification_code": code,
	}, "", &pair)
	Expect(status).To(Equal(http.StatusOK))
	return pair
}

var _ = Describe("Passwordless authentication", Ordered, func() {
	const email = "a@x.com"
	var pair tokenPair

	It("reports an unknown email as available", func() {
		var body map[string]bool
		Expect(call(http.MethodGet, "/v1/auth/check_email?email="+email, nil, "", &body)).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("email_availability", true))
	})

	It("signs up, verifies the emailed code and creates an active user", func() {
		code := signup(email)

		_, err := env.users.Find(env.ctx, auth.ByEmail(email))
		Expect(err).To(MatchError(auth.ErrNotFound), "no account before the code is verified")

		pair = verify(email, code)
		Expect(pair.AccessToken).NotTo(BeEmpty())
		Expect(pair.RefreshToken).NotTo(BeEmpty())

		user, err := env.users.Find(env.ctx, auth.ByEmail(email))
		Expect(err).NotTo(HaveOccurred())
		Expect(user.IsActive).To(BeTrue())
	})

	It("rejects a consumed code", func() {
		var body map[string]string
		status := call(http.MethodPost, "/v1/auth/verify-code", map[string]any{
			"email": email, "verification_code": env.mail.last(email),
		}, "", &body)
		Expect(status).To(Equal(auth.ErrVerificationCodeIncorrect.Status))
		Expect(body["detail"]).To(Equal(auth.ErrVerificationCodeIncorrect.Detail))
	})

	It("refuses a second signup for the same email", func() {
		Expect(call(http.MethodPost, "/v1/auth/signup", map[string]any{
			"email": email, "first_name": "Ada", "last_name": "Lovelace",
		}, "", nil)).To(Equal(auth.ErrEmailAlreadyExists.Status))
	})

	It("validates the access token", func() {
		var payload map[string]any
		Expect(call(http.MethodPost, "/v1/auth/validate", map[string]any{
			"access_token": pair.AccessToken,
		}, "", &payload)).To(Equal(http.StatusOK))
		Expect(payload).To(HaveKeyWithValue("role", auth.RoleUser))
		Expect(payload).To(HaveKeyWithValue("is_refresh", false))
	})

	It("rotates the refresh token once", func() {
		var next tokenPair
		Expect(call(http.MethodPost, "/v1/auth/refresh", map[string]any{
			"refresh_token": pair.RefreshToken,
		}, "", &next)).To(Equal(http.StatusOK))
		Expect(next.RefreshToken).NotTo(Equal(pair.RefreshToken))

		Expect(call(http.MethodPost, "/v1/auth/refresh", map[string]any{
			"refresh_token": pair.RefreshToken,
		}, "", nil)).To(Equal(auth.ErrInvalidToken.Status))

		pair = next
	})

	It("signs in again with a fresh code", func() {
		Expect(call(http.MethodPost, "/v1/auth/signin", map[string]any{"email": email}, "", nil)).
			To(Equal(http.StatusAccepted))
		second := verify(email, env.mail.last(email))
		Expect(second.AccessToken).NotTo(BeEmpty())
	})

	It("revokes the session on signout", func() {
		var body map[string]bool
		Expect(call(http.MethodPost, "/v1/auth/signout", nil, pair.AccessToken, &body)).To(Equal(http.StatusOK))
		Expect(body).To(HaveKeyWithValue("status", true))

		Expect(call(http.MethodPost, "/v1/auth/validate", map[string]any{
			"access_token": pair.AccessToken,
		}, "", nil)).To(Equal(auth.ErrInvalidToken.Status))
		Expect(call(http.MethodPost, "/v1/auth/refresh", map[string]any{
			"refresh_token": pair.RefreshToken,
		}, "", nil)).To(Equal(auth.ErrInvalidToken.Status))
	})
})

var _ = Describe("Verification codes", func() {
	It("rejects a wrong code and keeps the right one usable", func() {
		const email = "wrong-code@x.com"
		code := signup(email)

		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		Expect(call(http.MethodPost, "/v1/auth/verify-code", map[string]any{
			"email": email, "verification_code": wrong,
		}, "", nil)).To(Equal(auth.ErrVerificationCodeIncorrect.Status))

		verify(email, code)
	})

	It("rejects an expired code", func() {
		const email = "expired@x.com"
		code := signup(email)
		env.redis.FastForward(2 * time.Minute)

		Expect(call(http.MethodPost, "/v1/auth/verify-code", map[string]any{
			"email": email, "verification_code": code,
		}, "", nil)).To(Equal(auth.ErrVerificationCodeIncorrect.Status))
	})

	It("does not issue a signin code for an unknown email", func() {
		Expect(call(http.MethodPost, "/v1/auth/signin", map[string]any{"email": "nobody@x.com"}, "", nil)).
			To(Equal(auth.ErrEmailNotFound.Status))
	})
})
