package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adstack/leadsync/internal/ingest"
	"github.com/adstack/leadsync/internal/refresh"
	"github.com/adstack/leadsync/internal/scheduler"
)

var scheduleMetricsPort int

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the sync jobs on their cron schedules",
	Long: `Run the lead ingestion and credential refresh jobs on their cron
schedules until interrupted. By default ingestion polls every minute and
the refresh fires daily at 02:00. A trigger that finds the previous run of
the same job still in flight is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return eris.Wrap(err, "schedule: open store")
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "schedule: migrate")
		}

		gc := newGraphClient()
		ingestJob := ingest.NewJob(st, gc, ingest.Options{
			FreshFormMetadata: cfg.Ingest.FreshFormMetadata,
		})
		refreshJob := refresh.NewJob(st, gc, refresh.Options{
			Threshold: time.Duration(cfg.Refresh.ThresholdDays) * 24 * time.Hour,
		})

		sched := scheduler.New()
		if err := sched.Add("ingest", cfg.Ingest.Schedule, ingestJob.Run); err != nil {
			return err
		}
		if err := sched.Add("refresh", cfg.Refresh.Schedule, refreshJob.Run); err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return sched.Run(ctx)
		})

		if scheduleMetricsPort > 0 {
			mux := http.NewServeMux()
			mux.Handle("GET /metrics", promhttp.Handler())
			srv := &http.Server{
				Addr:    fmt.Sprintf(":%d", scheduleMetricsPort),
				Handler: mux,
			}
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			g.Go(func() error {
				zap.L().Info("starting metrics listener", zap.Int("port", scheduleMetricsPort))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return eris.Wrap(err, "schedule: metrics listen")
				}
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	scheduleCmd.Flags().IntVar(&scheduleMetricsPort, "metrics-port", 0, "expose Prometheus metrics on this port (0 disables)")
	rootCmd.AddCommand(scheduleCmd)
}
