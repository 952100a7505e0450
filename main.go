// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Repairdesk.
//
// Usage:
//
//	go run . <command> [flags]
//	./repairdesk <command> [flags]
//
// See --help for the available jobs.
package main

import (
	"os"

	"github.com/toeirei/repairdesk/ui/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
