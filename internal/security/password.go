// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// PasswordBytes is the amount of entropy in a generated tenant password.
const PasswordBytes = 32

// GeneratePassword returns a random password drawn from crypto/rand and
// encoded with the URL-safe base64 alphabet, so it never needs quoting in
// DSNs or DDL.
func GeneratePassword() (Secret, error) {
	raw := make([]byte, PasswordBytes)
	defer clear(raw)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	return Secret(base64.RawURLEncoding.EncodeToString(raw)), nil
}
