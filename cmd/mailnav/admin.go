package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/mailnav/internal/backup"
	"github.com/tinytelemetry/mailnav/internal/duckdb"
	"github.com/tinytelemetry/mailnav/internal/duckdb/migrate"
	"github.com/tinytelemetry/mailnav/internal/model"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations to the configured database and print the
migration history. The backend also migrates on startup.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			// NewStore would migrate on open; --status needs the raw connection.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
				return err
			}
			db, err := sql.Open("duckdb", cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			runner := migrate.NewRunner(db)
			if !statusOnly {
				if _, err := runner.RunContext(cmd.Context()); err != nil {
					return fmt.Errorf("failed to migrate: %w", err)
				}
			}

			current, pending, err := runner.Status()
			if err != nil {
				return err
			}
			history, err := runner.History(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema version %d, %d pending\n", current, pending)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
			for _, a := range history {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", a.Version, a.Name, a.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only print the migration status")
	return cmd
}

func newSeedCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Load a YAML fixture into the database",
		Long: `Load domains, accounts, messages, quarantine items, traffic counters and
settings from a YAML fixture. Defaults to the configured seed-file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			path := cfg.SeedFile
			if len(args) == 1 {
				path = expandHome(args[0])
			}
			if path == "" {
				return errors.New("no seed file given and seed-file is not configured")
			}

			store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			n, err := seedStore(store, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"seeded %d domains, %d accounts, %d messages, %d quarantined, %d traffic days, %d settings\n",
				n.Domains, n.Accounts, n.Messages, n.Quarantine, n.Traffic, n.Settings)
			return nil
		},
	}
	return cmd
}

func seedStore(store *duckdb.Store, path string) (duckdb.SeedCounts, error) {
	seed, err := duckdb.LoadSeed(path)
	if err != nil {
		return duckdb.SeedCounts{}, err
	}
	n, err := store.ApplySeed(seed)
	if err != nil {
		return n, fmt.Errorf("failed to apply seed: %w", err)
	}
	return n, nil
}

func newBackupCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Take one snapshot now and upload it when a bucket is configured",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			bcfg := cfg.Backup
			bcfg.Enabled = true
			bcfg.Manual = true
			snap, err := runBackupOnce(cmd.Context(), store, bcfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s (%d bytes)\n", snap.Path, snap.Size)
			if snap.Remote != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "uploaded to %s\n", snap.Remote)
			}
			return nil
		},
	}
}

func runBackupOnce(ctx context.Context, store backup.Snapshotter, cfg backup.Config) (model.Snapshot, error) {
	m, err := backup.NewManager(store, cfg)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to initialize backups: %w", err)
	}
	defer m.Stop()
	return m.RunOnce(ctx)
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for seed files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("empty password")
			}
			hash, err := duckdb.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
