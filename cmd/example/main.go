package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/bus"
	"github.com/fluxorio/actionbus/pkg/config"
	"github.com/fluxorio/actionbus/pkg/logging"
	"github.com/fluxorio/actionbus/pkg/middleware"
	busotel "github.com/fluxorio/actionbus/pkg/observability/otel"
	busprom "github.com/fluxorio/actionbus/pkg/observability/prometheus"
)

// Action types dispatched by this example.
const (
	ActionAppStarted action.Tag = "lifecycle.app_started"
	ActionTick       action.Tag = "clock.tick"
	ActionAppStopped action.Tag = "lifecycle.app_stopped"

	// TagLifecycle marks every lifecycle action in addition to its exact type.
	TagLifecycle action.Tag = "lifecycle"
)

// AppConfig is the example's file-loadable configuration.
type AppConfig struct {
	Bus     bus.Options    `yaml:"bus" json:"bus"`
	Tracing busotel.Config `yaml:"tracing" json:"tracing"`
}

func main() {
	logger := logging.NewStdLogger()

	cfg := &AppConfig{}
	if path := os.Getenv("ACTIONBUS_CONFIG"); path != "" {
		if err := config.LoadWithEnv(path, "ACTIONBUS", cfg); err != nil {
			logger.Errorf("load config: %v", err)
			os.Exit(1)
		}
	}
	cfg.Bus.Logger = logger

	if err := busotel.Initialize(context.Background(), cfg.Tracing); err != nil {
		logger.Warnf("tracing disabled: %v", err)
	}

	// The main goroutine constructs the dispatcher and owns it: every
	// synchronous Dispatch below happens here, and Run drains the async
	// queue here too.
	d := bus.New(cfg.Bus)
	defer d.Close()

	d.AddInterceptor(middleware.Correlation())
	d.AddInterceptor(middleware.Tracing())
	d.AddInterceptor(middleware.Metrics(nil))
	d.AddInterceptor(middleware.Logging(logger))

	if err := busprom.ObserveDispatcher(d, nil); err != nil {
		logger.Warnf("metrics registration failed: %v", err)
	}

	// Store-style subscribers. The audit store runs first (lower priority).
	audit := d.Subscribe(action.Any, func(a *action.Action) error {
		logger.Infof("audit: %s (correlation %s)", a.Type(), a.Meta(middleware.MetaCorrelationID))
		return nil
	}, bus.WithPriority(10))
	defer audit.Dispose()

	lifecycle := d.Subscribe(TagLifecycle, func(a *action.Action) error {
		logger.Infof("lifecycle store observed %s", a.Type())
		return nil
	})
	defer lifecycle.Dispose()

	ticks := d.Subscribe(ActionTick, func(a *action.Action) error {
		return nil
	})
	defer ticks.Dispose()

	// Consume the tick subscription's back-pressure stream.
	go func() {
		for a := range ticks.Flow() {
			fmt.Printf("tick %v\n", a.Payload())
		}
	}()

	if _, err := d.Dispatch(action.New(ActionAppStarted, time.Now(), action.WithTags(ActionAppStarted, TagLifecycle, action.Any))); err != nil {
		logger.Errorf("startup dispatch failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Ticker publishes from a worker goroutine, so it must use the async path.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n++
				if err := d.DispatchAsync(action.New(ActionTick, n)); err != nil {
					logger.Warnf("tick dropped: %v", err)
				}
			}
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	// Blocks until the signal handler cancels ctx.
	if err := d.Run(ctx); err != nil && err != context.Canceled {
		logger.Errorf("run: %v", err)
	}

	if _, err := d.Dispatch(action.New(ActionAppStopped, time.Now(), action.WithTags(ActionAppStopped, TagLifecycle, action.Any))); err != nil {
		logger.Errorf("shutdown dispatch failed: %v", err)
	}

	stats := d.Stats()
	logger.Infof("dispatched=%d delivered=%d dropped=%d failed=%d subscriptions=%d",
		stats.Dispatched, stats.Delivered, stats.Dropped, stats.Failed, d.SubscriptionCount())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := busotel.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("tracer shutdown: %v", err)
	}
}
