// Copyright (c) 2026 Repairdesk Team
// Repairdesk - tenant database lifecycle manager
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/repairdesk/buildvars"
	"github.com/toeirei/repairdesk/internal/batch"
	"github.com/toeirei/repairdesk/internal/config"
	"github.com/toeirei/repairdesk/internal/db"
	"github.com/toeirei/repairdesk/internal/i18n"
	"github.com/toeirei/repairdesk/internal/logging"
	"github.com/toeirei/repairdesk/internal/tracing"
	"github.com/toeirei/repairdesk/internal/validate"
)

var version = "dev"   // this will be set by the linker
var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

var cfgFile string
var debugFlag bool

// Process-wide services, set up by the pre-run hooks and released by
// closeServices.
var (
	appConfig   config.Config
	store       *db.Store
	stopTracing func(context.Context) error
)

// Exit codes of the binary.
const (
	ExitOK          = 0
	ExitUnitsFailed = 1
	ExitFatal       = 2
)

const (
	serviceName = "repairdesk"
	modulePath  = "github.com/toeirei/repairdesk"
)

// ExitCode maps the error returned by Execute to the process exit code.
// Failed tenants give 1, everything else that went wrong gives 2.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, batch.ErrUnitsFailed), errors.Is(err, validate.ErrValidationFailed):
		return ExitUnitsFailed
	default:
		return ExitFatal
	}
}

// loadConfig resolves the configuration and initializes logging and
// messages. It does not touch any database.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path, err := getConfigPathFromCli(cmd)
	if err != nil {
		return err
	}
	appConfig, err = config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	// Running without a config file is fine; `config init` writes one.
	if err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return fmt.Errorf("error loading config: %w", err)
	}
	appConfig.Normalize()

	if debugFlag {
		logging.SetDebug(true)
		db.SetDebug(true)
	}
	i18n.Init(appConfig.Language)
	return nil
}

// setupDefaultServices opens the master store and starts tracing. Any
// failure here is fatal for the job.
func setupDefaultServices(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if store == nil {
		s, err := db.Open(ctx, appConfig.Database.Type, appConfig.Database.Dsn)
		if err != nil {
			return fmt.Errorf("%s: %w", i18n.T("config.error_init_db"), err)
		}
		store = s
	}
	if stopTracing == nil {
		v, _, _ := resolveBuildVersion(nil)
		shutdown, err := tracing.Init(ctx, serviceName, v, appConfig.Tracing.Endpoint)
		if err != nil {
			logging.Warnf("tracing disabled: %v", err)
		} else {
			stopTracing = shutdown
		}
	}
	return nil
}

// closeServices flushes traces and closes the master store.
func closeServices() {
	if stopTracing != nil {
		if err := stopTracing(context.Background()); err != nil {
			logging.Warnf("tracing shutdown: %v", err)
		}
		stopTracing = nil
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logging.Warnf("closing master store: %v", err)
		}
		store = nil
	}
}

// Execute runs the CLI. Interrupts cancel the running job; units not yet
// started are reported as failed and the run is still closed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer closeServices()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Errorf("%v", err)
		return err
	}
	return nil
}

func getConfigPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	// A typo in --config must not silently fall back to the defaults.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// NewRootCmd creates the root command with every subcommand. Each call
// returns a fresh tree so tests can run commands in isolation.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repairdesk",
		Short: "Repairdesk manages the per-shop tenant databases of a repair shop system.",
		Long: `Repairdesk moves every shop of the shared master database into a
dedicated tenant store and keeps track of those stores.

  provision    create a tenant store for every shop that has none
  migrate      copy each shop's rows into its store, resumable
  validate     compare every store with the master database

Jobs are idempotent and may be re-run at any time. Exit code 1 means some
tenants failed, exit code 2 means the job could not run at all.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	cmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("language", "en", `Message language ("en", "de")`)

	cmd.AddCommand(
		newProvisionCmd(),
		newMigrateCmd(),
		newValidateCmd(),
		newMaintainCmd(),
		newDeprovisionCmd(),
		newRegistryCmd(),
		newRunsCmd(),
		newCheckpointsCmd(),
		newAuditCmd(),
		newConfigCmd(),
		newDebugCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	if c != "" && c != "dev" {
		v += " (" + c + ")"
	}
	if d != "" {
		v += " built: " + d
	}
	return v
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from
// the runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault(version)
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		// Some build paths only record our version as a dependency.
		if resolvedVersion == "dev" || resolvedVersion == "(devel)" {
			for _, dep := range info.Deps {
				if dep.Path == modulePath && dep.Version != "" {
					resolvedVersion = dep.Version
					break
				}
			}
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}
