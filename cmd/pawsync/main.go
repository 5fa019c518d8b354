// Command pawsync tracks a pet sitting: sessions, daily task logs, and a
// document service that keeps sitter and owner devices in sync.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pawsitive/pawsync/internal/config"
	"github.com/pawsitive/pawsync/internal/gateway"
	"github.com/pawsitive/pawsync/internal/logging"
)

var (
	v    = config.New()
	cfg  *config.Config
	logs *logging.Factory

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "pawsync",
	Short: "Shared pet-sitting activity tracker",
	Long: `pawsync keeps a pet sitter and an owner looking at the same day.

A session holds the sitting (sitter, dates, dogs, emergency contacts) and a
log per day of completed tasks, comments, photos and a generated summary.
Every change is saved to the configured store and pushed to everyone
watching the session.

Get started:
  pawsync config init            # write ~/.config/pawsync/pawsync.toml
  pawsync session create         # interactive wizard
  pawsync day show SARAH-42      # today's checklist`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		logs = logging.NewFactory(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
			Quiet:      quiet,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logs != nil {
			_ = logs.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "service", Title: "Service:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default ./pawsync.toml or ~/.config/pawsync/pawsync.toml)")
	pf.String("store", "", "Store driver: sqlite, remote or memory")
	pf.String("db", "", "SQLite database path")
	pf.String("url", "", "Server URL for the remote driver")
	pf.String("token", "", "Bearer token for the remote driver")
	pf.BoolP("quiet", "q", false, "Only log to the log file")

	for key, flag := range map[string]string{
		"store.driver": "store",
		"store.path":   "db",
		"store.url":    "url",
		"store.token":  "token",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}
}

// fatal prints an error and exits. A missing store configuration gets the
// static setup message.
func fatal(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	if errors.Is(err, gateway.ErrConfigurationMissing) {
		fmt.Fprintf(os.Stderr, "%s pawsync is not configured.\n", RenderWarn("⚠"))
		fmt.Fprintf(os.Stderr, "   %v\n", err)
		fmt.Fprintf(os.Stderr, "   Run 'pawsync config init' or pass --store/--db/--url.\n")
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
