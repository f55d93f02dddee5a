package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"yaami/core"
	"yaami/logging"
	"yaami/metrics"
)

func newScheduleCmd(a *app) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the scheduled downloads of the settings file until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.cfg.Schedules) == 0 {
				return errors.New("no schedules configured in " + a.configPath)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var srv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				srv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logging.Error("metrics server failed", logging.Err(err))
					}
				}()
				logging.Info("serving metrics", logging.String("addr", metricsAddr))
			}

			history := core.NewHistory(a.cfg.History)
			if err := history.Load(); err != nil {
				logging.Warn("failed to load download history", logging.Err(err))
			}

			runner := core.NewRunner(a.cfg.Schedules, a.store, a.service, a.transfer)
			runner.UseHistory(history)
			if err := runner.Start(ctx); err != nil {
				logging.Warn("some schedules were not started", logging.Err(err))
			}
			logging.Info("yaami scheduler started", logging.Int("schedules", len(a.cfg.Schedules)))

			<-ctx.Done()

			logging.Info("shutting down")
			runner.Stop()
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}
