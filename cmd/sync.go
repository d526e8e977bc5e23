package cmd

import (
	"context"
	"fmt"

	"vmsync/core/config"
	"vmsync/core/logger"
	"vmsync/core/netbox"
	"vmsync/core/reconcile"
	"vmsync/core/vsphere"
	"vmsync/feature/vmsync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for the sync command
	dryRunSync  bool
	netboxToken string
)

// syncCmd performs one reconciliation pass.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Converge the mirror inventory to the source platform",
	Long: `Run one reconciliation pass: sweep orphaned virtual machines, then
reconcile every source machine (cluster, platform, machine, interfaces,
IP assignments) against the mirror.

A single write failure never aborts the pass; convergence is restored by
simply running again.

Examples:
  # Reconcile
  vmsync sync

  # Compute and log actions without writing
  vmsync sync --dry-run

  # Override the mirror API token from the environment/.env
  vmsync sync --netbox-token "$TOKEN"`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&dryRunSync, "dry-run", false, "Compute and log actions without issuing writes")
	syncCmd.Flags().StringVar(&netboxToken, "netbox-token", "", "Mirror API token (overrides NETBOX_TOKEN)")

	RootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if netboxToken != "" {
		cfg.Netbox.Token = netboxToken
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	l = logger.WithRunID(l, uuid.NewString())

	overrides, err := vmsync.ParseClusterOverrides(cfg.Sync.ClusterOverrides)
	if err != nil {
		return fmt.Errorf("invalid cluster override table: %w", err)
	}

	source := vsphere.NewClient(cfg.Vsphere, l)
	if err := source.Login(ctx, cfg.Vsphere.Username, cfg.Vsphere.Password); err != nil {
		return fmt.Errorf("failed to open source platform session: %w", err)
	}
	defer source.Logout(ctx)

	mirror := netbox.NewClient(cfg.Netbox)

	l.Info("Starting reconciliation", zap.Bool("dry_run", dryRunSync))

	r := vmsync.New(mirror, source, l, vmsync.Options{
		DryRun:           dryRunSync,
		ClusterOverrides: overrides,
	})

	summary, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	printSyncReport(l, summary, dryRunSync)

	return nil
}

// printSyncReport prints a formatted run summary using the logger.
func printSyncReport(l *zap.Logger, s reconcile.Summary, dryRun bool) {
	l.Info("Reconciliation report",
		zap.Int("creates", s.Creates),
		zap.Int("updates", s.Updates),
		zap.Int("deletes", s.Deletes),
		zap.Int("noops", s.Noops),
		zap.Int("skipped", s.Skipped),
		zap.Int("failures", s.Failures),
	)

	if dryRun {
		l.Info("Dry-run mode: no changes were made.")
		return
	}
	if s.Failures > 0 {
		l.Warn("Some writes failed; the next run will converge the remainder.",
			zap.Int("failures", s.Failures))
	}
}
