// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyProvisioned marks a store that already exists. Provision
	// reports it through Result.AlreadyProvisioned; callers that need an
	// error, such as a strict single-shop provision, wrap it.
	ErrAlreadyProvisioned = errors.New("tenant store already provisioned")
	// ErrProvisioningFailed matches every *ProvisioningError.
	ErrProvisioningFailed = errors.New("provisioning failed")
	// ErrAdminModeRequired is returned when provisioning is attempted
	// without admin mode enabled.
	ErrAdminModeRequired = errors.New("admin mode is required for provisioning (set admin.mode or REPAIRDESK_ADMIN_MODE)")
)

// StepUnregisteredStore is the ProvisioningError step of a store that
// exists without a registry record, typically left behind by a crash
// between creating the store and registering it.
const StepUnregisteredStore = "store exists without registry record"

// ProvisioningError reports the step at which creating or dropping a tenant
// store failed.
type ProvisioningError struct {
	ShopID int64
	Step   string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("shop %d: %v at %s: %v", e.ShopID, ErrProvisioningFailed, e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() []error {
	return []error{ErrProvisioningFailed, e.Err}
}

func failed(shopID int64, step string, err error) error {
	var pe *ProvisioningError
	if errors.As(err, &pe) {
		return err
	}
	return &ProvisioningError{ShopID: shopID, Step: step, Err: err}
}
