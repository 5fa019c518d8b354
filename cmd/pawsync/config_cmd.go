package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pawsitive/pawsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "service",
	Short:   "Manage pawsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file using the local sqlite store",
	Long: `Write a config file that points pawsync at a local SQLite database.

Example usage:
  pawsync config init
  pawsync config init --path ./pawsync.toml --db ./pets.db`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		db, _ := cmd.Flags().GetString("db-path")
		force, _ := cmd.Flags().GetBool("force")
		if path == "" {
			path = filepath.Join(config.DefaultDir(), config.FileName+".toml")
		}
		if db == "" {
			db = config.DefaultDBPath()
		}

		if err := config.Init(path, db, force); err != nil {
			fatal("%w", err)
		}
		fmt.Printf("%s Wrote %s\n", RenderPass("✓"), path)
		fmt.Printf("   Sessions are stored in %s\n", db)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		if cfg.File != "" {
			fmt.Printf("# %s\n", cfg.File)
		} else {
			fmt.Println(RenderMuted("# no config file; defaults and environment only"))
		}
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			fatal("%w", err)
		}
	},
}

func init() {
	configInitCmd.Flags().String("path", "", "Config file to write (default ~/.config/pawsync/pawsync.toml)")
	configInitCmd.Flags().String("db-path", "", "Database path (default ~/.config/pawsync/pawsync.db)")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
