package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ubi/internal/application/dto"
	"github.com/turtacn/ubi/internal/bootstrap"
	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

func newAdjustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust",
		Short: "Run premium adjustments against the live database",
	}
	cmd.AddCommand(newAdjustBulkCmd())
	return cmd
}

func newAdjustBulkCmd() *cobra.Command {
	req := &dto.BulkAdjustRequest{}
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Adjust the premium of many policies in one run",
		Long: `Adjust every active policy, or only those given with --policy. By default each
policy is priced from its holder's latest stored score; --rescore computes a fresh
daily score for --date first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.RescoreDate != "" {
				if _, err := time.Parse("2006-01-02", req.RescoreDate); err != nil {
					return errors.ErrInvalidInput("invalid --date %q, expected YYYY-MM-DD", req.RescoreDate)
				}
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := bootstrap.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			var resp *dto.BulkAdjustResponse
			err = monitoring.TraceOperation(ctx, app.Tracing, "cli.adjust.bulk", func(ctx context.Context) error {
				var err error
				resp, err = app.Pricing.BulkAdjust(ctx, req)
				return err
			}, map[string]interface{}{
				"policies": len(req.PolicyIDs),
				"rescore":  req.Rescore,
			})
			if err != nil {
				return err
			}
			log.Info(ctx, "Bulk adjustment finished",
				logger.Int("total", resp.Total),
				logger.Int("successful", resp.Successful),
				logger.Int("failed", resp.Failed),
			)
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().StringSliceVar(&req.PolicyIDs, "policy", nil, "policy id to adjust, repeatable (default: all active policies)")
	cmd.Flags().BoolVar(&req.Rescore, "rescore", false, "compute a fresh daily score before pricing")
	cmd.Flags().StringVar(&req.RescoreDate, "date", "", "day to rescore, YYYY-MM-DD (default: today, UTC)")
	return cmd
}
