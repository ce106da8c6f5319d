package http

import (
	"fmt"
	"net"
	"net/http"

	"github.com/echome/echosync/internal/config"
	"github.com/echome/echosync/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/r3labs/sse/v2"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the role specific backends mounted under /api. Nil members
// are not routed: a watch has no favorites or content service and a phone
// has no companion cache.
type Services struct {
	Favorites favoritesService
	Content   contentService
	Companion companionService
	// Peer accepts the companion's websocket on the phone.
	Peer http.Handler
	// Link reports companion reachability on readiness checks.
	Link PeerStatus
}

type Server struct {
	log    zerolog.Logger
	levels logLevelSetter
	sse    *sse.Server
	db     DBPinger

	config *config.AppConfig

	version string
	commit  string
	date    string

	favorites favoritesService
	content   contentService
	companion companionService
	peer      http.Handler
	link      PeerStatus
}

func NewServer(log logger.Logger, config *config.AppConfig, sse *sse.Server, db DBPinger, version string, commit string, date string, services Services) Server {
	return Server{
		log:     log.With().Str("module", "http").Logger(),
		levels:  log,
		config:  config,
		sse:     sse,
		db:      db,
		version: version,
		commit:  commit,
		date:    date,

		favorites: services.Favorites,
		content:   services.Content,
		companion: services.Companion,
		peer:      services.Peer,
		link:      services.Link,
	}
}

func (s Server) Open() error {
	cfg := s.config.Current()
	addr := fmt.Sprintf("%v:%v", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := http.Server{
		Handler: s.Handler(),
	}

	s.log.Info().Msgf("Starting server. Listening on %s", listener.Addr().String())

	return server.Serve(listener)
}

func (s Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(&s.log))

	c := cors.New(cors.Options{
		AllowCredentials:   true,
		AllowedMethods:     []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowOriginFunc:    func(origin string) bool { return true },
		OptionsPassthrough: true,
		Debug:              false,
	})

	r.Use(c.Handler)

	encoder := encoder{}

	r.Route("/api", func(r chi.Router) {
		if s.db != nil {
			r.Route("/healthz", newHealthHandler(encoder, s.db, s.link, s.favorites).Routes)
		}
		r.Route("/config", newConfigHandler(encoder, s, s.config).Routes)
		r.Route("/logs", newLogsHandler(s.config).Routes)

		if s.favorites != nil {
			r.Route("/favorites", newFavoritesHandler(encoder, s.favorites).Routes)
		}
		if s.content != nil {
			r.Route("/content", newContentHandler(encoder, s.content).Routes)
		}
		if s.companion != nil {
			r.Route("/companion", newCompanionHandler(encoder, s.companion).Routes)
		}
		if s.peer != nil {
			r.Handle("/peer", s.peer)
		}

		if s.sse != nil {
			r.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
				s.sse.Headers = map[string]string{
					"Content-Type":      "text/event-stream",
					"Cache-Control":     "no-cache",
					"Connection":        "keep-alive",
					"X-Accel-Buffering": "no",
				}
				s.sse.ServeHTTP(w, r)
			})
		}
	})

	return r
}
