// cmd/report.go
package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ramonfullstack/automation-scripts/internal/audit"
	"github.com/ramonfullstack/automation-scripts/internal/config"
	"github.com/ramonfullstack/automation-scripts/internal/engine"
	"github.com/ramonfullstack/automation-scripts/internal/observability"
	"github.com/ramonfullstack/automation-scripts/internal/report"
	"github.com/ramonfullstack/automation-scripts/internal/store"
)

// phaseTitles maps stored labels back to their console titles.
var phaseTitles = map[string]string{
	engine.LabelFrontend: engine.TitleFrontend,
	engine.LabelSwagger:  engine.TitleSwagger,
	engine.LabelERP:      engine.TitleERP,
}

func newReportCmd() *cobra.Command {
	var runID string

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild the console report of a past run from the hit-log database",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(runID)
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", runID, err)
			}

			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := config.Get()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres.url (or DATABASE_URL) must be set to read stored runs")
			}

			pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer pool.Close()

			storeService, err := store.New(ctx, pool, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize store service: %w", err)
			}

			hits, err := storeService.GetHitsByRun(ctx, id)
			if err != nil {
				logger.Error("Failed to load run", zap.Error(err), zap.String("run_id", runID))
				return err
			}

			printer := report.NewPrinter(cmd.OutOrStdout(), report.Format(cfg.Report.Format))
			return printRun(printer, cfg, hits)
		},
	}

	reportCmd.Flags().StringVar(&runID, "run-id", "", "the ID of the run to report on (required)")
	_ = reportCmd.MarkFlagRequired("run-id")

	return reportCmd
}

// printRun prints one summary per stored phase, then the ERP target view.
// Stored hits carry no raw tokens, so the target view shows no claims.
func printRun(p *report.Printer, cfg *config.Config, hits []audit.Hit) error {
	var (
		order  []string
		phases = map[string][]audit.Hit{}
	)
	for _, h := range hits {
		if _, seen := phases[h.Label]; !seen {
			order = append(order, h.Label)
		}
		phases[h.Label] = append(phases[h.Label], h)
	}
	if len(order) == 0 {
		return p.Summary(report.Summarize("Stored run", nil, cfg.Report.RecentLimit))
	}

	for _, label := range order {
		title, ok := phaseTitles[label]
		if !ok {
			title = label
		}
		if err := p.Summary(report.Summarize(title, phases[label], cfg.Report.RecentLimit)); err != nil {
			return err
		}
	}

	if erpHits, ok := phases[engine.LabelERP]; ok {
		filter := audit.TargetFilter{
			Matcher: audit.NewMatcher(cfg.Target.URL, cfg.Target.Hints),
			Method:  cfg.Target.Method,
		}
		return p.Targets(report.SelectTargets(engine.TitleERPTarget, filter, erpHits, cfg.Report.TargetLimit))
	}
	return nil
}
