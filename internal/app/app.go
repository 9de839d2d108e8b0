// Package app wires the store, broker gateway, jobs, schedulers and HTTP
// server together and runs them until shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tradeflow/internal/broker"
	"tradeflow/internal/config"
	"tradeflow/internal/executor"
	"tradeflow/internal/logger"
	"tradeflow/internal/monitor"
	"tradeflow/internal/scheduler"
	"tradeflow/internal/store"
	"tradeflow/internal/tickers"
	apihttp "tradeflow/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App holds the assembled components.
type App struct {
	cfg    *config.Config
	store  *store.Store
	broker broker.Gateway

	executor *executor.Executor
	orders   *monitor.OrderReconciler
	position *monitor.PositionReconciler
	server   *apihttp.Server
}

// New assembles the application from config.
func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("app: opening store: %w", err)
	}

	gateway := broker.NewAlpacaGateway(broker.AlpacaOpts{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.APISecret,
		BaseURL:   cfg.Alpaca.BaseURL,
	})

	cache := tickers.NewSearchCache(gateway, cfg.Tickers.SearchCacheTTL)
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:    cfg.App.HTTPAddr,
		Store:   st,
		Tickers: cache,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: building http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		store:    st,
		broker:   gateway,
		executor: executor.New(st, gateway),
		orders:   monitor.NewOrderReconciler(st, gateway),
		position: monitor.NewPositionReconciler(st, gateway),
		server:   server,
	}, nil
}

// Run starts the schedulers and the HTTP server and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = a.store.Close() }()

	var window *scheduler.TradingWindow
	if !a.cfg.Schedule.ExtendedHours {
		w, err := scheduler.NewTradingWindow(a.cfg.Schedule.MarketOpen, a.cfg.Schedule.MarketClose, a.cfg.Schedule.Timezone)
		if err != nil {
			return err
		}
		window = w
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "executor", a.cfg.Schedule.ExecutorInterval, 0)
		s.Window = window
		s.RunImmediately = true
		s.Start(func() {
			if err := a.executor.Run(ctx); err != nil {
				logger.Errorf("executor run failed: %v", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "order-sync", a.cfg.Schedule.OrderSyncInterval, 0)
		s.Window = window
		s.Start(func() {
			if err := a.orders.Run(ctx); err != nil {
				logger.Errorf("order sync run failed: %v", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		s := scheduler.NewIntervalScheduler(ctx, "position-sync", a.cfg.Schedule.PositionSyncInterval, 0)
		s.Window = window
		s.Start(func() {
			if err := a.position.Run(ctx); err != nil {
				logger.Errorf("position sync run failed: %v", err)
			}
		})
		return nil
	})

	// end-of-day pass: one full reconcile after the close, outside the
	// window gate, so fills landing in the final minutes are not left for
	// the next session
	eod, err := scheduler.NewDailyScheduler(ctx, "end-of-day", a.cfg.Schedule.MarketClose, a.cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	g.Go(func() error {
		eod.Start(func() {
			if err := a.orders.Run(ctx); err != nil {
				logger.Errorf("end-of-day order sync failed: %v", err)
			}
			if err := a.position.Run(ctx); err != nil {
				logger.Errorf("end-of-day position sync failed: %v", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		logger.Infof("api server listening on %s", a.server.Addr())
		return a.server.Start(ctx)
	})

	return g.Wait()
}
