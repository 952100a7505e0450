// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionNotFound is returned when a shop has no stored connection.
	ErrConnectionNotFound = errors.New("tenant connection not found")
	// ErrCredentialDecryption matches every *CredentialDecryptionError.
	ErrCredentialDecryption = errors.New("credential decryption failed")
	// ErrUnsupportedExport is returned for an export stream of unknown version.
	ErrUnsupportedExport = errors.New("unsupported registry export")
)

// CredentialDecryptionError reports a stored record that could not be
// opened or decoded: wrong key, tampered blob or a blob belonging to another
// shop.
type CredentialDecryptionError struct {
	ShopID int64
	Err    error
}

func (e *CredentialDecryptionError) Error() string {
	return fmt.Sprintf("shop %d: %v: %v", e.ShopID, ErrCredentialDecryption, e.Err)
}

func (e *CredentialDecryptionError) Unwrap() []error {
	return []error{ErrCredentialDecryption, e.Err}
}
