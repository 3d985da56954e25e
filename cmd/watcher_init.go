package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vladse1/CHP/internal/cad"
	"github.com/vladse1/CHP/internal/incident"
	"github.com/vladse1/CHP/internal/monitoring"
	"github.com/vladse1/CHP/internal/notify"
	"github.com/vladse1/CHP/internal/seen"
	"github.com/vladse1/CHP/internal/watch"
	"github.com/vladse1/CHP/pkg/telegram"
)

// watchEnv holds the initialized store and watcher shared by the watch/run
// commands.
type watchEnv struct {
	Watcher *watch.Watcher
	Store   seen.Store
}

// Close releases resources held by the watch environment.
func (we *watchEnv) Close() {
	if we.Store != nil {
		_ = we.Store.Close()
	}
}

// initWatcher sets up the seen store, CAD source, formatter, and dispatcher,
// and builds the Watcher. Callers should defer env.Close().
func initWatcher(ctx context.Context, dryRun bool) (*watchEnv, error) {
	if len(cfg.CAD.Centers) == 0 {
		return nil, eris.New("no communications centers configured (set cad.centers or CHP_CAD_CENTERS)")
	}
	if !dryRun {
		if err := cfg.RequireTelegram(); err != nil {
			return nil, err
		}
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	filter, err := incident.NewTypeFilter(cfg.Filter.Types)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	source := cad.New(cad.Options{
		PageURL:    cfg.CAD.PageURL,
		Timeout:    cfg.CAD.Timeout,
		MaxRetries: cfg.CAD.MaxRetries,
		RateLimit:  cfg.CAD.RateLimit,
	})

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if dryRun {
		zap.L().Info("dry run: incidents are logged, not sent")
	} else {
		bot := telegram.NewClient(cfg.Telegram.Token)
		dispatcher = notify.NewTelegramDispatcher(bot, cfg.Telegram.ChatID, cfg.Notify.DisablePreview)
	}

	w := watch.New(
		source,
		st,
		notify.NewFormatter(cfg.Notify.MaxDetailChars),
		dispatcher,
		monitoring.NewMetrics(),
		watch.Config{
			Centers:      cfg.CAD.Centers,
			FetchDetails: cfg.CAD.FetchDetails,
			Filter:       filter,
			Recent:       cfg.Server.Recent,
		},
	)

	return &watchEnv{Watcher: w, Store: st}, nil
}
