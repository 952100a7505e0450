// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/toeirei/repairdesk/internal/config"
)

const redacted = "[REDACTED]"

// secretEnv lists environment variables whose values are never printed.
var secretEnv = []string{"REPAIRDESK_REGISTRY_KEY", "REPAIRDESK_ADMIN_DSN", "REPAIRDESK_DATABASE_DSN"}

func newDebugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Dump the effective configuration, flags and environment",
		Long: `Prints the configuration after defaults, config file, environment and
flags were applied, for diagnosing setups. Keys and DSNs are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "--- REPAIRDESK DEBUG ---")
			if path, err := config.GetConfigPath(false); err == nil {
				fmt.Fprintf(out, "user config path: %s\n", path)
			}
			if cfgFile != "" {
				fmt.Fprintf(out, "--config: %s\n", cfgFile)
			}

			b, err := yaml.Marshal(redactConfig(appConfig))
			if err != nil {
				return fmt.Errorf("could not marshal config: %w", err)
			}
			fmt.Fprintln(out, "-- effective config --")
			fmt.Fprint(out, string(b))

			fmt.Fprintln(out, "-- flags --")
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				fmt.Fprintf(out, "%s = %s\n", f.Name, f.Value.String())
			})

			fmt.Fprintln(out, "-- environment (REPAIRDESK_*) --")
			var env []string
			for _, e := range os.Environ() {
				if strings.HasPrefix(e, "REPAIRDESK_") {
					env = append(env, redactEnv(e))
				}
			}
			slices.Sort(env)
			for _, e := range env {
				fmt.Fprintln(out, e)
			}
			fmt.Fprintln(out, "--- END DEBUG ---")
			return nil
		},
	}
}

func redactConfig(c config.Config) config.Config {
	if c.Registry.Key != "" {
		c.Registry.Key = redacted
	}
	if c.Admin.Dsn != "" {
		c.Admin.Dsn = redacted
	}
	// A master DSN may carry a password; a sqlite path is harmless.
	if c.Database.Dsn != "" && !strings.EqualFold(c.Database.Type, "sqlite") {
		c.Database.Dsn = redacted
	}
	return c
}

func redactEnv(kv string) string {
	name, _, _ := strings.Cut(kv, "=")
	if slices.Contains(secretEnv, name) {
		return name + "=" + redacted
	}
	return kv
}
