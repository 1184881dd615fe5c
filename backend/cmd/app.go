package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/fredp03/watchtogether/backend/catalog"
	"github.com/fredp03/watchtogether/backend/config"
	"github.com/fredp03/watchtogether/backend/metrics"
	"github.com/fredp03/watchtogether/backend/relay"
	httpServer "github.com/fredp03/watchtogether/backend/server/http"
	websocketServer "github.com/fredp03/watchtogether/backend/server/websocket"
	"github.com/fredp03/watchtogether/backend/service"
	store "github.com/fredp03/watchtogether/backend/storage/memory"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg := config.Load()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", cfg.WSListenAddr, "websocket sync listen address")
		mediaRoot     = fs.StringP("media-root", "m", cfg.MediaRoot, "directory scanned for playable media")
		logLevel      = fs.StringP("log-level", "l", cfg.LogLevel, "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	cat, err := catalog.New(catalog.Config{
		Logger: &logger,
		Root:   *mediaRoot,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("root", *mediaRoot).Msg("media root is not usable")
	}
	metrics.CatalogAssets.Set(float64(len(cat.Assets())))

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Relay:     relay.New(&logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		Catalog:     cat,
		RoomService: svc,
		ListenAddr:  *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		RelayService: svc,
		ListenAddr:   *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
