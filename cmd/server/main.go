package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"buddychat/internal/auth"
	"buddychat/internal/chat"
	"buddychat/internal/config"
	"buddychat/internal/db"
	"buddychat/internal/group"
	"buddychat/internal/logger"
	myMiddleware "buddychat/internal/middleware"
	"buddychat/internal/notification"
	"buddychat/internal/presence"
	"buddychat/internal/pubsub"
	"buddychat/internal/store"
	"buddychat/internal/stomp"
)

const (
	presenceTTL     = 2 * time.Minute
	cleanupInterval = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	seed := flag.Int("seed", 0, "with the in-memory store, create users and activities 1..n")
	flag.Parse()

	// 1. Config & logging
	cfg, err := config.Load(*envFile)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("loading config")
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *seed); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger, seed int) error {
	// 2. Persistence
	var st store.Store
	if cfg.DatabaseDSN != "" {
		database, err := db.NewDatabase(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer database.Close()
		log.Info().Msg("connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return err
		}
		log.Info().Msg("database schema initialized")
		st = store.NewPostgres(database.Conn)
	} else {
		log.Warn().Msg("DB_DSN not set, using in-memory store")
		mem := store.NewMemory()
		for i := 1; i <= seed; i++ {
			mem.PutUser(int64(i), "user"+strconv.Itoa(i))
			mem.PutActivity(int64(i), "Activity "+strconv.Itoa(i), int64(i))
		}
		st = mem
	}

	// 3. Presence
	var tracker presence.Tracker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		tracker = presence.NewRedisTracker(rdb, presenceTTL)
	} else {
		tracker = presence.NewMemoryTracker(presenceTTL)
	}

	// 4. Features
	broker := pubsub.NewBroker(log)
	notes := notification.NewService(st, broker, log)
	dispatcher := notification.NewDispatcher(notes, cfg.NotifyWorkers, cfg.NotifyQueue, log)
	chats := chat.NewService(st, broker, dispatcher, log)
	groups := group.NewService(st, broker, dispatcher, log)
	typing := presence.NewSignaler(broker, st, log)

	routes, err := stomp.AppRoutes(chats, groups, typing)
	if err != nil {
		return err
	}
	subs, err := stomp.AppSubscriptions(chats, groups)
	if err != nil {
		return err
	}
	ws := stomp.NewServer(broker, routes, subs, tracker, stomp.Options{
		SendBuffer:     cfg.WSSendBuffer,
		WriteTimeout:   cfg.WriteTimeout,
		AllowedOrigins: cfg.AllowedOrigins(),
	}, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(auth.NewJWTValidator(cfg.JWTSecret))
	chatHandler := chat.NewHandler(chats)
	groupHandler := group.NewHandler(groups)
	notificationHandler := notification.NewHandler(notes)
	presenceHandler := presence.NewHandler(tracker, log)

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(myMiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Route("/group-chat", groupHandler.Routes(authMiddleware.Handle))

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Get("/ws", ws.ServeWs)
		r.Route("/chat", chatHandler.ChatRoutes)
		r.Route("/matches", chatHandler.MatchRoutes)
		r.Route("/notifications", notificationHandler.Routes)
		r.Route("/presence", presenceHandler.Routes)
	})

	// Service-to-service hooks
	if cfg.InternalToken != "" {
		r.Route("/internal", func(r chi.Router) {
			r.Use(myMiddleware.InternalOnly(cfg.InternalToken))
			chatHandler.InternalRoutes(r)
		})
	} else {
		log.Warn().Msg("INTERNAL_TOKEN not set, match hook disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Run until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return notes.RunCleanup(gctx, cleanupInterval, cfg.NotificationRetention()) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		ws.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
