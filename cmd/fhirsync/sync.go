package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync once without the HTTP server",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "subject <id>",
		Short: "Sync one subject and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, func(ctx context.Context, a *app) (interface{}, error) {
				out, err := a.sync.SyncSubject(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"status":          "success",
					"subjectId":       out.SubjectID,
					"resourcesSynced": out.ResourcesSynced,
					"inserted":        out.Inserted,
					"updated":         out.Updated,
					"bundleId":        out.BundleID,
				}, nil
			})
		},
	})

	bulkCmd := &cobra.Command{
		Use:   "bulk",
		Short: "Sync up to --count subjects and print the batch result",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			return runOnce(cmd, func(ctx context.Context, a *app) (interface{}, error) {
				if count <= 0 {
					count = a.cfg.DefaultBulkCount
				}
				if count > a.cfg.MaxBulkCount {
					return nil, fmt.Errorf("count must not exceed %d", a.cfg.MaxBulkCount)
				}
				return a.sync.SyncMany(ctx, count)
			})
		},
	}
	bulkCmd.Flags().Int("count", 0, "Maximum number of subjects (defaults to SYNC_DEFAULT_BULK_COUNT)")
	cmd.AddCommand(bulkCmd)

	return cmd
}

func runOnce(cmd *cobra.Command, fn func(context.Context, *app) (interface{}, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := fn(ctx, a)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
