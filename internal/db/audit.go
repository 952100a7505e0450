// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"os/user"
	"strings"

	"github.com/toeirei/repairdesk/internal/model"
)

// AuditWriter records human-readable events in the audit log.
type AuditWriter interface {
	LogAction(ctx context.Context, action, details string) error
}

// LogAction inserts an audit log entry attributed to the current OS user.
func (s *Store) LogAction(ctx context.Context, action, details string) error {
	m := &AuditLogModel{
		Timestamp: s.now().UTC(),
		Username:  currentUsername(),
		Action:    action,
		Details:   details,
	}
	_, err := s.bun.NewInsert().Model(m).Exec(ctx)
	return MapDBError(err)
}

// ListAuditEntries returns the most recent audit entries first.
func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var am []AuditLogModel
	q := s.bun.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditEntry, 0, len(am))
	for _, a := range am {
		out = append(out, model.AuditEntry{ID: a.ID, Timestamp: a.Timestamp, Username: a.Username, Action: a.Action, Details: a.Details})
	}
	return out, nil
}

func currentUsername() string {
	curUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	// Windows reports DOMAIN\user.
	if parts := strings.Split(curUser.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return curUser.Username
}
