package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/turtacn/ubi/internal/bootstrap"
	"github.com/turtacn/ubi/internal/config"
	"github.com/turtacn/ubi/internal/domain/models"
	domainService "github.com/turtacn/ubi/internal/domain/service"
	"github.com/turtacn/ubi/internal/infrastructure/pricingfile"
	"github.com/turtacn/ubi/pkg/errors"
	"github.com/turtacn/ubi/pkg/logger"
)

func newPricingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect, validate and publish pricing tables",
	}
	cmd.AddCommand(
		newPricingValidateCmd(),
		newPricingExportCmd(),
		newPricingImportCmd(),
		newPricingSimulateCmd(),
	)
	return cmd
}

func newPricingValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pricing table document without publishing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			doc, err := readPricingDocument(file)
			if err != nil {
				return err
			}
			table, err := bootstrap.NewPricingTable(cfg)
			if err != nil {
				return err
			}
			report := table.ValidateConfig(doc)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.IsValid {
				return errors.ErrValidation(report.Errors)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "pricing table document to validate")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPricingExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the effective pricing table as JSON",
		Long: `Export the table the service would start with: the pricing section of the
config, overridden by pricing.table_file when one is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			table, err := effectiveTable(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return table.Export(cmd.OutOrStdout())
			}
			return writeFileAtomic(out, table.Export)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

func newPricingImportCmd() *cobra.Command {
	var file, to string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a pricing table document and publish it to the watched table file",
		Long: `Import validates the document against the configured rules and, when it passes,
atomically replaces the table file. Running services watching that file reload it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if to == "" {
				to = cfg.Pricing.TableFile
			}
			if to == "" {
				return errors.ErrInvalidInput("no destination: pass --to or set pricing.table_file")
			}

			doc, err := readPricingDocument(file)
			if err != nil {
				return err
			}
			table, err := bootstrap.NewPricingTable(cfg)
			if err != nil {
				return err
			}
			// Replace runs the same validation the service applies on reload.
			report, err := table.Replace(doc)
			if err != nil {
				_ = writeJSON(cmd.OutOrStdout(), report)
				return err
			}
			if err := writeFileAtomic(to, table.Export); err != nil {
				return err
			}
			for _, w := range report.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published pricing table %s to %s\n", table.Version(), to)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "pricing table document to import")
	cmd.Flags().StringVar(&to, "to", "", "destination table file (default: pricing.table_file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newPricingSimulateCmd() *cobra.Command {
	var basePremium float64
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Show the premium each band and scenario would produce for a base premium",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			table, err := effectiveTable(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			engine := domainService.NewPricingEngine(domainService.PricingEngineConfig{
				Thresholds:       bootstrap.Thresholds(&cfg.Scoring),
				MaxMonthlyChange: cfg.Pricing.MaxMonthlyChange,
				BulkWorkers:      cfg.Pricing.BulkWorkers,
			}, domainService.PricingEngineDeps{
				Table:  table,
				Logger: logger.NewNoopLogger(),
			})
			scenarios, err := engine.SimulateScenarios(cmd.Context(), basePremium)
			if err != nil {
				return err
			}
			return printSimulation(cmd.OutOrStdout(), table.Version(), scenarios, table.ScenarioAnalysis(basePremium))
		},
	}
	cmd.Flags().Float64Var(&basePremium, "base-premium", 1000, "base premium to simulate against")
	return cmd
}

func printSimulation(w io.Writer, version string, scenarios []models.ScenarioQuote, analysis models.ScenarioAnalysis) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Pricing table %s, base premium %.2f\n\n", version, analysis.BasePremium)

	fmt.Fprintln(tw, "SCENARIO\tSCORE RANGE\tSCORE\tBAND\tDELTA\tPREMIUM")
	for _, s := range scenarios {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\t%s\t%+.1f%%\t%.2f\n",
			s.Name, s.ScoreRange, s.Score, s.Quote.Band, s.Quote.DeltaPct*100, s.Quote.NewPremium)
	}

	fmt.Fprintln(tw, "\nBAND\tDELTA\tPREMIUM\tCHANGE")
	for _, b := range analysis.Scenarios {
		fmt.Fprintf(tw, "%s\t%+.1f%%\t%.2f\t%+.2f\n", b.Band, b.DeltaPct*100, b.NewPremium, b.PremiumChange)
	}
	fmt.Fprintf(tw, "\nRange: %.2f - %.2f (%.2f)\n", analysis.MinPremium, analysis.MaxPremium, analysis.PremiumRange)
	return tw.Flush()
}

// effectiveTable mirrors the startup sequence: config rules first, then the table file.
func effectiveTable(ctx context.Context, cfg *config.Config) (*domainService.PricingTable, error) {
	table, err := bootstrap.NewPricingTable(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Pricing.TableFile == "" {
		return table, nil
	}
	if _, err := os.Stat(cfg.Pricing.TableFile); os.IsNotExist(err) {
		return table, nil
	}
	w := pricingfile.NewWatcher(cfg.Pricing.TableFile, table, nil, logger.NewNoopLogger())
	if _, err := w.Load(ctx); err != nil {
		return nil, err
	}
	return table, nil
}

func readPricingDocument(path string) (*models.PricingConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ErrInvalidInput("cannot open %s: %v", path, err)
	}
	defer f.Close()
	return domainService.ParsePricingDocument(f)
}

// writeFileAtomic writes through a temp file in the target directory and renames it
// into place, so watchers never observe a half-written table.
func writeFileAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pricing-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
