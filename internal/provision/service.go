// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/registry"
)

// CheckpointStore forgets migration progress of a removed tenant.
type CheckpointStore interface {
	DeleteCheckpoints(ctx context.Context, shopID int64) (int64, error)
}

// Service provisions tenant stores and records them in the registry.
type Service struct {
	prov        Provisioner
	reg         *registry.Registry
	tenant      db.TenantOptions
	audit       db.AuditWriter
	checkpoints CheckpointStore
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTenantOptions sets the timeouts used while bootstrapping the schema.
func WithTenantOptions(o db.TenantOptions) ServiceOption {
	return func(s *Service) { s.tenant = o }
}

// WithAudit records provisioning in the audit log.
func WithAudit(w db.AuditWriter) ServiceOption {
	return func(s *Service) { s.audit = w }
}

// WithCheckpoints lets Teardown clear migration checkpoints.
func WithCheckpoints(c CheckpointStore) ServiceOption {
	return func(s *Service) { s.checkpoints = c }
}

// NewService returns a Service using prov for the privileged work.
func NewService(prov Provisioner, reg *registry.Registry, opts ...ServiceOption) *Service {
	s := &Service{prov: prov, reg: reg}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProvisionOne gives shop its own store: create the store, apply the tenant
// schema, register the credentials. A shop that already has a registry
// record is reported as AlreadyProvisioned and left untouched. A store
// without a registry record is a failure: its credentials are lost, so the
// shop would stay invisible to migrate and validate. Anything created
// before a failing step is dropped again. The password in the returned
// credentials has already been wiped.
func (s *Service) ProvisionOne(ctx context.Context, shop model.Shop) (Result, error) {
	log := logging.With("shop", shop.ID)

	_, err := s.reg.Get(ctx, shop.ID)
	switch {
	case err == nil:
		return Result{Shop: shop, AlreadyProvisioned: true}, nil
	case !errors.Is(err, registry.ErrConnectionNotFound):
		// A record exists but cannot be read; do not create a second store.
		return Result{}, failed(shop.ID, "check registry", err)
	}

	res, err := s.prov.Provision(ctx, shop)
	if err != nil {
		return Result{}, failed(shop.ID, "create store", err)
	}
	if res.AlreadyProvisioned {
		log.Warn("store exists without a registry record; deprovision the shop and provision it again")
		return Result{}, failed(shop.ID, StepUnregisteredStore, ErrAlreadyProvisioned)
	}
	defer res.Credentials.Password.Zero()

	if err := s.bootstrap(ctx, shop.ID, res.Credentials); err != nil {
		s.undo(shop.ID)
		return Result{}, failed(shop.ID, "apply schema", err)
	}
	if err := s.reg.Register(ctx, shop.ID, res.Credentials); err != nil {
		s.undo(shop.ID)
		return Result{}, failed(shop.ID, "register connection", err)
	}

	log.Info("tenant store provisioned", "target", res.Credentials.String())
	s.logAction(ctx, "PROVISION_TENANT", fmt.Sprintf("shop: %d, target: %s", shop.ID, res.Credentials))
	return res, nil
}

func (s *Service) bootstrap(ctx context.Context, shopID int64, creds model.Credentials) error {
	t, err := db.OpenTenant(ctx, shopID, creds, s.tenant)
	if err != nil {
		return err
	}
	defer t.Close()
	return ApplySchema(ctx, t)
}

func (s *Service) undo(shopID int64) {
	if err := s.prov.Deprovision(context.Background(), shopID); err != nil {
		logging.Warnf("provision: cleanup for shop %d failed: %v", shopID, err)
	}
}

// ProvisionAll provisions every shop through runner. Already provisioned
// shops count as skipped.
func (s *Service) ProvisionAll(ctx context.Context, runner *batch.Runner, shops []model.Shop) batch.Report {
	byID := make(map[int64]model.Shop, len(shops))
	ids := make([]int64, 0, len(shops))
	for _, sh := range shops {
		byID[sh.ID] = sh
		ids = append(ids, sh.ID)
	}
	return runner.Run(ctx, ids, func(ctx context.Context, id int64) (batch.Outcome, error) {
		res, err := s.ProvisionOne(ctx, byID[id])
		if err != nil {
			return batch.Outcome{}, err
		}
		if res.AlreadyProvisioned {
			return batch.Outcome{Status: batch.StatusSkipped, Detail: ErrAlreadyProvisioned.Error()}, nil
		}
		return batch.Outcome{Detail: res.Credentials.String()}, nil
	})
}

// Teardown drops the tenant store of shopID and forgets its registry record
// and checkpoints. The store is dropped first so a failed teardown can be
// retried with the record still in place.
func (s *Service) Teardown(ctx context.Context, shopID int64) error {
	if err := s.prov.Deprovision(ctx, shopID); err != nil {
		return failed(shopID, "drop store", err)
	}
	if err := s.reg.Remove(ctx, shopID); err != nil {
		return failed(shopID, "remove registry record", err)
	}
	if s.checkpoints != nil {
		if _, err := s.checkpoints.DeleteCheckpoints(ctx, shopID); err != nil {
			return failed(shopID, "clear checkpoints", err)
		}
	}
	logging.With("shop", shopID).Info("tenant store removed")
	s.logAction(ctx, "DEPROVISION_TENANT", fmt.Sprintf("shop: %d", shopID))
	return nil
}

// Exists reports whether the store of shopID exists.
func (s *Service) Exists(ctx context.Context, shopID int64) (bool, error) {
	return s.prov.Exists(ctx, shopID)
}

func (s *Service) logAction(ctx context.Context, action, details string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogAction(ctx, action, details); err != nil {
		logging.Warnf("provision: audit %s failed: %v", action, err)
	}
}
