package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pairflow/config"
	"pairflow/internal/pipeline"
	"pairflow/internal/server"
	"pairflow/internal/settings"
	"pairflow/logger"
	"pairflow/pkg/binance"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	if err := cfg.Defaults.Validate(); err != nil {
		log.Fatal("invalid default settings", zap.Error(err))
	}
	store := settings.NewStore(cfg.Defaults)

	p := pipeline.New(pipeline.Options{
		TickBuffer:      cfg.Pipeline.TickBuffer,
		BarBuffer:       cfg.Pipeline.BarBuffer,
		BufferCapacity:  cfg.Pipeline.BufferCapacity,
		MaxBars:         cfg.Pipeline.MaxBars,
		QueueSize:       cfg.Pipeline.QueueSize,
		SnapshotHistory: cfg.Pipeline.SnapshotHistory,
		BroadcastEvery:  cfg.Pipeline.BroadcastEvery,
		FinalizerPoll:   cfg.Pipeline.FinalizerPoll,
		FinalizeGrace:   cfg.Pipeline.FinalizeGrace,
	}, store, log)

	feed := binance.NewWSClient(cfg.Feed.WSURL, cfg.Feed.Symbols, log)
	feed.SetTickHandler(p.OnTick)
	p.SetFeedProbe(feed.IsConnected)

	// A pair change may reference symbols outside the configured stream set;
	// resubscribe so their trades start flowing.
	store.Watch(func(old, next settings.Settings) {
		if old.SymbolA != next.SymbolA || old.SymbolB != next.SymbolB ||
			!equalSymbols(old.DisplaySymbols, next.DisplaySymbols) {
			feed.UpdateSymbols(streamSymbols(next))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go p.Run(ctx)
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Fatal("feed terminated", zap.Error(err))
		}
	}()

	srv := server.New(p, log)
	go func() {
		if err := srv.Run(cfg.Server.Addr); err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	feed.Close()
}

// streamSymbols merges the analytics pair into the display set so the pair
// always has trade data regardless of what the dashboard shows.
func streamSymbols(s settings.Settings) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(s.DisplaySymbols)+2)
	for _, sym := range append([]string{s.SymbolA, s.SymbolB}, s.DisplaySymbols...) {
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func equalSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
