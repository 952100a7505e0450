// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model contains the plain data types shared by the registry, the
// provisioning service and the batch jobs.
package model

import (
	"fmt"
	"time"

	"github.com/toeirei/repairdesk/internal/security"
)

// Shop is a tenant: the root unit of isolation.
type Shop struct {
	ID   int64
	Name string
}

// String returns "name (#id)" or "shop id" when the name is unknown.
func (s Shop) String() string {
	if s.Name == "" {
		return fmt.Sprintf("shop %d", s.ID)
	}
	return fmt.Sprintf("%s (#%d)", s.Name, s.ID)
}

// Supported tenant store drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Credentials is the plaintext form of a tenant connection. For the sqlite
// driver Database holds the file path and the network fields are empty.
type Credentials struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password security.Secret
	SSLMode  string
}

// String describes the target without the password.
func (c Credentials) String() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite:%s", c.Database)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", c.Driver, c.Username, c.Host, c.Port, c.Database)
}

// TenantConnection is the stored, encrypted form of a tenant's credentials.
type TenantConnection struct {
	ShopID     int64
	Ciphertext []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuditEntry is a single human-readable audit log record.
type AuditEntry struct {
	ID        int64
	Timestamp time.Time
	Username  string
	Action    string
	Details   string
}
