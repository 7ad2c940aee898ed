package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agora/internal/config"
	"github.com/agora/internal/email"
	"github.com/agora/internal/handler"
	"github.com/agora/internal/logger"
	"github.com/agora/internal/media"
	"github.com/agora/internal/middleware"
	"github.com/agora/internal/realtime"
	"github.com/agora/internal/repository"
	"github.com/agora/internal/service"
	"github.com/agora/internal/startup"
	"github.com/agora/internal/storage"
	"github.com/agora/internal/storage/memory"
	"github.com/agora/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory token store (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "")
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var tokenStore storage.TokenStore
	if *dev {
		tokenStore = memory.New()
		logger.Info("using in-memory token store")
	} else {
		tokenStore = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "")
	}
	defer tokenStore.Close()

	userRepo := repository.NewUserRepository(pool)
	friendRepo := repository.NewFriendRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)

	relay := realtime.NewClient(cfg.Relay)
	if !relay.Enabled() {
		logger.Info("relay not configured, realtime events disabled")
	}
	mediaClient := media.NewClient(cfg.MediaServiceURL)
	if !mediaClient.Enabled() {
		logger.Info("media service not configured, uploads disabled")
	}
	mailer := email.NewSender(&cfg.SMTP)

	tokens := service.NewTokenService(cfg.JWT, tokenStore)
	msgService := service.NewMessageService(msgRepo, convRepo, relay)

	authH := handler.NewAuthHandler(userRepo, convRepo, tokens, tokenStore, mailer, relay, cfg)
	userH := handler.NewUserHandler(userRepo, friendRepo, relay, mediaClient)
	convH := handler.NewConversationHandler(convRepo, userRepo, msgRepo, msgService, relay, mediaClient)
	msgH := handler.NewMessageHandler(msgRepo, convRepo, userRepo, msgService, relay, mediaClient)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })

	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/verify", authH.Verify)
	r.Post("/api/auth/login", authH.Login)
	r.Post("/api/auth/refresh", authH.Refresh)
	r.Post("/api/auth/forgot-password", authH.ForgotPassword)
	r.Post("/api/auth/reset-password", authH.ResetPassword)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tokens))

		r.Post("/api/auth/logout", authH.Logout)
		r.Post("/api/auth/relay", authH.RelayAuth)

		r.Get("/api/users/me", userH.GetMe)
		r.Get("/api/users/me/strangers", userH.GetStrangers)
		r.Get("/api/users/search", userH.Search)
		r.Patch("/api/users/upload-avt", userH.UploadAvatar)
		r.Post("/api/users/add-friend", userH.AddFriend)
		r.Post("/api/users/accept-friend", userH.AcceptFriend)
		r.Post("/api/users/reject-friend", userH.RejectFriend)
		r.Post("/api/users/cancel-friend", userH.CancelFriend)
		r.Post("/api/users/remove-friend", userH.RemoveFriend)

		r.Post("/api/conversations", convH.Create)
		r.Get("/api/conversations", convH.List)
		r.Get("/api/conversations/search/name", convH.SearchByName)
		r.Get("/api/conversations/not-seen/message", convH.NotSeen)
		r.Get("/api/conversations/{id}", convH.GetByID)
		r.Post("/api/conversations/seen/{id}", convH.Seen)
		r.Patch("/api/conversations/update-thumb/{id}", convH.UpdateThumb)
		r.Patch("/api/conversations/update-info/{id}", convH.UpdateInfo)
		r.Patch("/api/conversations/add-members/{id}", convH.AddMembers)
		r.Patch("/api/conversations/remove-member/{id}", convH.RemoveMember)
		r.Patch("/api/conversations/leave-conversation/{id}", convH.Leave)
		r.Patch("/api/conversations/add-admin/{id}", convH.AddAdmin)
		r.Patch("/api/conversations/leave-per/{id}", convH.LeavePer)
		r.Patch("/api/conversations/hidden/{id}", convH.Hidden)
		r.Get("/api/conversations/images/{id}", convH.Images)
		r.Get("/api/conversations/links/{id}", convH.Links)

		r.Post("/api/messages", msgH.Create)
		r.Post("/api/messages/typing", msgH.Typing)
		r.Get("/api/messages/all/{conversationId}", msgH.GetAll)
		r.Get("/api/messages/image/{conversationId}", msgH.Range)
		r.Get("/api/messages/search/content/{conversationId}", msgH.Search)
		r.Get("/api/messages/{conversationId}", msgH.Get)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	files := []string{"001_init.sql"}
	for _, f := range files {
		data, err := migrations.Files.ReadFile(f)
		if err != nil {
			logger.Errorf("read migration %s: %v", f, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", f, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "agora"
		password = "agora_secret"
		database = "agora"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
