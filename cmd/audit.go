package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/engine"
	"github.com/ramonfullstack/automation-scripts/internal/observability"
	"github.com/ramonfullstack/automation-scripts/internal/report"
)

func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Open the apps, log in to the ERP and report the credentials sent to the target API",
		Long: `Drives a browser through the frontend, swagger and ERP pages, records every outgoing
request with its Authorization and tenant headers, prints masked summaries and appends each
complete tenant/token pair seen on the target endpoint to the capture file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runAudit(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := auditCmd.Flags()
	flags.Bool("headless", true, "run the browser without a window")
	flags.Bool("erp", true, "run the ERP login phase")
	flags.String("target", "", "target endpoint URL")
	flags.String("output", "", "capture file for tenant/token pairs")
	flags.String("format", "", "report format: text or json")
	flags.String("schedule", "", "once or interval")
	flags.Duration("interval", 0, "delay between repetitions in interval mode")

	bindFlag("browser.headless", auditCmd, "headless")
	bindFlag("erp.enabled", auditCmd, "erp")
	bindFlag("target.url", auditCmd, "target")
	bindFlag("capture.output_file", auditCmd, "output")
	bindFlag("report.format", auditCmd, "format")
	bindFlag("schedule.mode", auditCmd, "schedule")
	bindFlag("schedule.interval", auditCmd, "interval")

	return auditCmd
}

func bindFlag(key string, cmd *cobra.Command, name string) {
	// Only lookups of flags declared above; an error here is a programming bug.
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

func runAudit(ctx context.Context, cfg *config.Config, out io.Writer) error {
	logger := observability.GetLogger()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Shutdown()

	printer := report.NewPrinter(out, report.Format(cfg.Report.Format))
	eng := engine.New(cfg, logger, components.Sessions(), components.Sink, components.EngineStore(), printer)

	logger.Info("Starting audit",
		zap.String("target", cfg.Target.URL),
		zap.String("capture_file", components.Sink.Path()),
		zap.String("schedule", string(cfg.Schedule.Mode)),
	)
	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	return nil
}
