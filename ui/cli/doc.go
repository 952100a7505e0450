// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Package cli implements the repairdesk command line using Cobra. Every job
// command is a run-to-completion batch over tenants; the command code wires
// configuration and services and leaves the work to the internal packages.
package cli
