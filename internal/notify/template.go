// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers verification codes by email.
package notify

import (
	"embed"
	"strings"

	"github.com/samber/oops"
)

// MessageVerificationCode is the template name and the subject of
// verification code emails.
const MessageVerificationCode = "verification-code"

//go:embed templates/*.html
var templatesFS embed.FS

// Render loads the named HTML template and replaces each {key} placeholder
// with its value from params. Values are inserted verbatim.
func Render(name string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return "", oops.Code("TEMPLATE_NO_PARAMS").With("template", name).Errorf("no values to render")
	}

	data, err := templatesFS.ReadFile("templates/" + name + ".html")
	if err != nil {
		return "", oops.Code("TEMPLATE_NOT_FOUND").With("template", name).Wrap(err)
	}

	pairs := make([]string, 0, len(params)*2)
	for key, value := range params {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(string(data)), nil
}
