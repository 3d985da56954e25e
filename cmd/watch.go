package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vladse1/CHP/internal/server"
	"github.com/vladse1/CHP/internal/watch"
)

var (
	watchInterval time.Duration
	watchJitter   time.Duration
	watchListen   string
	watchDryRun   bool
	watchOnce     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the CAD page and forward new incidents",
	Long:  "Runs the fetch-dispatch loop until interrupted. Each cycle pulls the incident grid for every configured center, sends incidents not seen before, and marks them seen only after delivery succeeds.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWatcher(ctx, watchDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		if watchOnce {
			_, err := env.Watcher.RunCycle(ctx)
			return err
		}

		interval := cfg.Watch.Interval
		if watchInterval > 0 {
			interval = watchInterval
		}
		jitter := cfg.Watch.Jitter
		if cmd.Flags().Changed("jitter") {
			jitter = watchJitter
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return env.Watcher.Run(gctx, clockwork.NewRealClock(), watch.LoopConfig{
				Interval: interval,
				Jitter:   jitter,
			})
		})

		listen := cfg.Server.Listen
		if watchListen != "" {
			listen = watchListen
		}
		if cfg.Server.Enabled || watchListen != "" {
			srv := server.New(listen, env.Watcher)
			g.Go(func() error {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return eris.Wrap(err, "status server listen")
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				zap.L().Info("shutting down status server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		}

		return g.Wait()
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default from config)")
	watchCmd.Flags().DurationVar(&watchJitter, "jitter", 0, "random extra delay per cycle (default from config)")
	watchCmd.Flags().StringVar(&watchListen, "listen", "", "enable the status server on this address")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "log incidents instead of sending to Telegram")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(watchCmd)
}
