// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package migrate

import "github.com/toeirei/repairdesk/internal/rows"

// SetAfterWrite installs the post-commit hook for tests.
func (e *Engine) SetAfterWrite(fn func(shopID int64, table string, b rows.Batch) error) {
	e.afterWrite = fn
}
