// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package registry is the connection registry: one encrypted credential
// record per tenant store, kept in the master store. Plaintext credentials
// exist only in memory while a caller holds them.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/model"
	"github.com/toeirei/repairdesk/internal/security"
)

// Store is the persistence the registry needs. *db.Store implements it.
type Store interface {
	UpsertConnection(ctx context.Context, shopID int64, ciphertext []byte) error
	GetConnection(ctx context.Context, shopID int64) (*model.TenantConnection, error)
	ListConnections(ctx context.Context) ([]model.TenantConnection, error)
	ConnectionShopIDs(ctx context.Context) ([]int64, error)
	DeleteConnection(ctx context.Context, shopID int64) error
	SaveConnections(ctx context.Context, conns []model.TenantConnection) error
}

// Registry stores and retrieves tenant credentials.
type Registry struct {
	store  Store
	audit  db.AuditWriter
	tenant db.TenantOptions

	// rotate is held exclusively while the key is being replaced.
	rotate sync.RWMutex
	cipher *security.Cipher
	locks  keyedMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeouts sets the timeouts used by Connect.
func WithTimeouts(opts db.TenantOptions) Option {
	return func(r *Registry) { r.tenant = opts }
}

// WithAudit records registry changes in the audit log.
func WithAudit(w db.AuditWriter) Option {
	return func(r *Registry) { r.audit = w }
}

// New returns a registry over store whose records are sealed with c.
func New(store Store, c *security.Cipher, opts ...Option) *Registry {
	r := &Registry{store: store, cipher: c}
	for _, o := range opts {
		o(r)
	}
	return r
}

// sealedCredentials is the JSON form encrypted into a record. The password is
// a plain string here because security.Secret refuses to marshal itself.
type sealedCredentials struct {
	Driver   string `json:"driver"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
}

func shopAAD(shopID int64) []byte {
	return []byte("shop:" + strconv.FormatInt(shopID, 10))
}

func (r *Registry) seal(c *security.Cipher, shopID int64, creds model.Credentials) ([]byte, error) {
	plain, err := json.Marshal(sealedCredentials{
		Driver:   creds.Driver,
		Host:     creds.Host,
		Port:     creds.Port,
		Database: creds.Database,
		Username: creds.Username,
		Password: creds.Password.Reveal(),
		SSLMode:  creds.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	defer clear(plain)
	return c.Seal(plain, shopAAD(shopID))
}

func (r *Registry) open(c *security.Cipher, shopID int64, blob []byte) (*model.Credentials, error) {
	plain, err := c.Open(blob, shopAAD(shopID))
	if err != nil {
		return nil, &CredentialDecryptionError{ShopID: shopID, Err: err}
	}
	defer clear(plain)
	var sc sealedCredentials
	if err := json.Unmarshal(plain, &sc); err != nil {
		return nil, &CredentialDecryptionError{ShopID: shopID, Err: err}
	}
	return &model.Credentials{
		Driver:   sc.Driver,
		Host:     sc.Host,
		Port:     sc.Port,
		Database: sc.Database,
		Username: sc.Username,
		Password: security.FromString(sc.Password),
		SSLMode:  sc.SSLMode,
	}, nil
}

// Register encrypts creds and stores them for shopID, replacing any earlier
// record.
func (r *Registry) Register(ctx context.Context, shopID int64, creds model.Credentials) error {
	r.rotate.RLock()
	defer r.rotate.RUnlock()
	defer r.locks.Lock(shopID)()

	blob, err := r.seal(r.cipher, shopID, creds)
	if err != nil {
		return fmt.Errorf("seal credentials for shop %d: %w", shopID, err)
	}
	if err := r.store.UpsertConnection(ctx, shopID, blob); err != nil {
		return err
	}
	logging.Debugf("registry: stored connection for shop %d (%s)", shopID, creds)
	r.logAction(ctx, "REGISTER_CONNECTION", fmt.Sprintf("shop: %d, target: %s", shopID, creds))
	return nil
}

// Get returns the decrypted credentials of shopID.
func (r *Registry) Get(ctx context.Context, shopID int64) (*model.Credentials, error) {
	r.rotate.RLock()
	defer r.rotate.RUnlock()

	tc, err := r.store.GetConnection(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if tc == nil {
		return nil, fmt.Errorf("shop %d: %w", shopID, ErrConnectionNotFound)
	}
	return r.open(r.cipher, shopID, tc.Ciphertext)
}

// ShopIDs lists every registered shop in ascending order.
func (r *Registry) ShopIDs(ctx context.Context) ([]int64, error) {
	return r.store.ConnectionShopIDs(ctx)
}

// List returns the stored records without decrypting them.
func (r *Registry) List(ctx context.Context) ([]model.TenantConnection, error) {
	return r.store.ListConnections(ctx)
}

// Remove deletes the record of shopID. Removing an absent record succeeds.
func (r *Registry) Remove(ctx context.Context, shopID int64) error {
	r.rotate.RLock()
	defer r.rotate.RUnlock()
	defer r.locks.Lock(shopID)()

	if err := r.store.DeleteConnection(ctx, shopID); err != nil {
		return err
	}
	r.logAction(ctx, "REMOVE_CONNECTION", fmt.Sprintf("shop: %d", shopID))
	return nil
}

// Connect opens the tenant store of shopID using the configured timeouts.
func (r *Registry) Connect(ctx context.Context, shopID int64) (*db.Tenant, error) {
	creds, err := r.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	defer creds.Password.Zero()
	return db.OpenTenant(ctx, shopID, *creds, r.tenant)
}

// Rekey re-encrypts every record under next and switches the registry to
// it. Either every record is rewritten or none is.
func (r *Registry) Rekey(ctx context.Context, next *security.Cipher) (int, error) {
	r.rotate.Lock()
	defer r.rotate.Unlock()

	conns, err := r.store.ListConnections(ctx)
	if err != nil {
		return 0, err
	}
	out := make([]model.TenantConnection, 0, len(conns))
	for _, tc := range conns {
		creds, err := r.open(r.cipher, tc.ShopID, tc.Ciphertext)
		if err != nil {
			return 0, err
		}
		blob, err := r.seal(next, tc.ShopID, *creds)
		creds.Password.Zero()
		if err != nil {
			return 0, fmt.Errorf("seal credentials for shop %d: %w", tc.ShopID, err)
		}
		out = append(out, model.TenantConnection{ShopID: tc.ShopID, Ciphertext: blob, CreatedAt: tc.CreatedAt})
	}
	if err := r.store.SaveConnections(ctx, out); err != nil {
		return 0, err
	}
	r.cipher = next
	r.logAction(ctx, "REKEY_REGISTRY", fmt.Sprintf("records: %d", len(out)))
	return len(out), nil
}

func (r *Registry) logAction(ctx context.Context, action, details string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.LogAction(ctx, action, details); err != nil {
		logging.Warnf("registry: audit %s failed: %v", action, err)
	}
}
