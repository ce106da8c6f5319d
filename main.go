package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/echome/echosync/internal/companion"
	"github.com/echome/echosync/internal/config"
	"github.com/echome/echosync/internal/content"
	"github.com/echome/echosync/internal/database"
	"github.com/echome/echosync/internal/domain"
	"github.com/echome/echosync/internal/events"
	"github.com/echome/echosync/internal/favorites"
	apihttp "github.com/echome/echosync/internal/http"
	"github.com/echome/echosync/internal/logger"
	"github.com/echome/echosync/internal/peer"
	"github.com/echome/echosync/internal/remote"
	"github.com/echome/echosync/internal/scheduler"
	"github.com/echome/echosync/internal/server"

	"github.com/asaskevich/EventBus"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var (
		configPath string
		role       string
		hashToken  string
	)
	pflag.StringVar(&configPath, "config", "", "path to configuration directory")
	pflag.StringVar(&role, "role", "", "override the configured role (phone or watch)")
	pflag.StringVar(&hashToken, "hash-token", "", "print the bcrypt hash of a pairing token and exit")
	pflag.Parse()

	if hashToken != "" {
		hash, err := config.HashPairingToken(hashToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	// read config
	cfg := config.New(configPath, version)
	if role != "" {
		cfg.Config.Role = role
	}

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	peerRole := domain.PeerRole(cfg.Config.Role)
	if peerRole != domain.RolePhone && peerRole != domain.RoleWatch {
		log.Fatal().Str("role", cfg.Config.Role).Msg("role must be phone or watch")
	}

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.AutoReplay = false
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})
	serverEvents.CreateStream(events.Stream)

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting echosync")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Role: %s", peerRole)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	peerContextRepo := database.NewPeerContextRepo(log, db)

	var (
		transport domain.PeerTransport
		peerHTTP  http.Handler
	)

	switch peerRole {
	case domain.RolePhone:
		t, err := peer.NewServerTransport(log, cfg.Config.Peer, peerContextRepo)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create peer endpoint")
		}
		transport, peerHTTP = t, t
	case domain.RoleWatch:
		t, err := peer.NewClientTransport(log, cfg.Config.Peer, peerContextRepo)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create peer client")
		}
		transport = t
	}

	channel := peer.NewChannel(log, peerRole, transport)
	channel.OnReachabilityChange(func(reachable bool) {
		bus.Publish(domain.EventPeerReachability, reachable)
	})

	var (
		jobs          scheduler.Jobs
		services      = apihttp.Services{Peer: peerHTTP, Link: channel}
		favoriteSet   server.Favorites
		contentSource server.Content
		idSource      events.FavoriteIDs
	)

	switch peerRole {
	case domain.RolePhone:
		store, err := remote.New(log, cfg.Config.Remote)
		if err != nil {
			log.Fatal().Err(err).Msg("could not create remote store")
		}

		var (
			favoritesService = favorites.NewService(log, cfg.Config, database.NewFavoriteRepo(log, db), store, bus)
			contentService   = content.NewService(log, cfg.Config, database.NewContentRepo(log, db), store, bus)
		)

		channel.SetFavorites(favoritesService)
		channel.SetContentSource(contentService)

		jobs = scheduler.Jobs{Favorites: favoritesService, Content: contentService}
		services.Favorites = favoritesService
		services.Content = contentService
		favoriteSet, contentSource, idSource = favoritesService, contentService, favoritesService
	case domain.RoleWatch:
		cache := companion.NewCache(log, channel)
		channel.SetSink(cache)

		jobs = scheduler.Jobs{Companion: cache}
		services.Companion = cache
	}

	schedulingService := scheduler.NewService(log, cfg.Config, jobs)

	// register event subscribers
	events.NewSubscribers(log, bus, channel, idSource, serverEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		httpServer := apihttp.NewServer(log, cfg, serverEvents, db, version, commit, date, services)
		return httpServer.Open()
	})

	srv := server.NewServer(log, cfg.Config, schedulingService, channel, favoriteSet, contentSource)
	if err := srv.Start(ctx); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	shutdown := func(code int) {
		srv.Shutdown()
		if err := transport.Close(); err != nil {
			log.Error().Err(err).Msg("could not close peer transport")
		}
		cancel()
		if err := db.Close(); err != nil {
			log.Error().Stack().Err(err).Msg("could not close db connection")
		}
		os.Exit(code)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	for {
		select {
		case <-gctx.Done():
			log.Error().Err(g.Wait()).Msg("http server stopped")
			shutdown(1)
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				log.Log().Msg("shutting down server sighup")
				shutdown(1)
			case syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM:
				log.Info().Msgf("Shutting down server due to %s...", sig)
				shutdown(0)
			}
		}
	}
}
