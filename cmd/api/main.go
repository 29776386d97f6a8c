package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/uticket/backend/internal/api"
	"github.com/uticket/backend/internal/auth"
	"github.com/uticket/backend/internal/config"
	"github.com/uticket/backend/internal/docstore"
	"github.com/uticket/backend/internal/domain"
	"github.com/uticket/backend/internal/fcm"
	"github.com/uticket/backend/internal/firebaseapp"
	"github.com/uticket/backend/internal/middleware"
	"github.com/uticket/backend/internal/queue"
	"github.com/uticket/backend/internal/repository"
	"github.com/uticket/backend/internal/storage"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Starting UTicket API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Type),
		zap.String("identity", cfg.Identity.Provider),
		zap.String("storage", cfg.Storage.Type),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := initDatabase(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Connected to database")

	var app *firebase.App
	if cfg.Firebase.ProjectID != "" {
		app, err = firebaseapp.New(ctx, firebaseapp.Options{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
			StorageBucket:   cfg.Firebase.StorageBucket,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase", zap.Error(err))
		}
	}

	store, closeStore, err := initStore(ctx, cfg, app)
	if err != nil {
		logger.Fatal("Failed to initialize document store", zap.Error(err))
	}
	defer closeStore()

	blobs, uploadsDir, err := initStorage(ctx, cfg, app)
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	identity, err := initIdentity(ctx, cfg, repo, logger)
	if err != nil {
		logger.Fatal("Failed to initialize identity provider", zap.Error(err))
	}

	var push api.PushSender
	if app != nil {
		fcmClient, err := fcm.NewClient(ctx, app, logger)
		if err != nil {
			logger.Warn("Push notifications disabled", zap.Error(err))
		} else {
			push = fcmClient
		}
	}

	notifications := domain.NewNotificationService(store, logger, cfg.Marketplace.FanOutBatchSize)

	// The dispatcher needs the auth service for push tokens, and the auth
	// service needs the session manager, so delivery goes through a closure.
	var dispatcher *api.NotificationDispatcher
	sessions := domain.NewSessionManager(store, notifications, func(sessionID, userID string, ev domain.NotificationEvent) bool {
		return dispatcher.Deliver(sessionID, userID, ev)
	}, cfg.Marketplace.WishlistCompositeKeys, logger)
	defer sessions.Shutdown()

	authService := domain.NewAuthService(repo, identity, jwtManager, sessions, cfg.Marketplace.AllowedEmailDomain, logger)

	wsManager := api.NewWebSocketManager(func(ctx context.Context, sessionID, notificationID string) {
		if sess, ok := sessions.Get(sessionID); ok {
			sess.Acknowledge(ctx, notificationID)
		}
	}, sessions.Replay, logger)
	go wsManager.Run(ctx)
	dispatcher = api.NewNotificationDispatcher(wsManager, push, authService, logger)

	var publisher domain.ListingEventPublisher
	if cfg.Queue.AMQPURL != "" {
		p := queue.NewPublisher(cfg.Queue.AMQPURL, cfg.Queue.ListingQueue, logger)
		defer p.Close()
		publisher = p

		consumer := queue.NewConsumer(cfg.Queue.AMQPURL, cfg.Queue.ListingQueue, func(ctx context.Context, ev domain.ListingCreatedEvent) error {
			_, err := notifications.FanOutNewListing(ctx, ev)
			return err
		}, logger)
		go consumer.Run(ctx)
		logger.Info("Listing fan-out via RabbitMQ", zap.String("queue", cfg.Queue.ListingQueue))
	} else {
		publisher = domain.NewInlineFanOut(notifications, logger)
	}

	listings := domain.NewListingService(store, blobs, publisher, logger)
	purchases := domain.NewPurchaseService(listings, notifications, cfg.Marketplace.CheckoutURL, logger)
	profiles := domain.NewProfileService(store, blobs, logger)

	rdb := config.NewRedisClient(cfg.Redis)
	checks := []api.Check{{Name: "postgres", Ping: repo.Ping}}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }})
	} else if cfg.RateLimit.Enabled {
		logger.Warn("Redis unavailable, auth rate limiting disabled")
	}

	handlers := api.Handlers{
		Auth:          api.NewAuthHandler(authService, jwtManager, logger),
		Health:        api.NewHealthHandler(version, checks...),
		Listings:      api.NewListingHandler(listings, authService, logger),
		Wishlist:      api.NewWishlistHandler(authService, logger),
		Notifications: api.NewNotificationHandler(notifications, authService, wsManager, logger),
		Purchases:     api.NewPurchaseHandler(purchases, logger),
		Profile:       api.NewProfileHandler(profiles, logger),
	}
	if len(cfg.Google.ClientIDs) > 0 && cfg.Google.ClientSecret != "" {
		handlers.GoogleOAuth = api.NewGoogleOAuthHandler(cfg, authService, logger)
	} else {
		logger.Warn("Google OAuth web flow is NOT configured - set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET to enable")
	}

	router := api.NewRouter(handlers, jwtManager,
		middleware.RateLimit(cfg.RateLimit, rdb, logger),
		cfg.Server.AllowedOrigins, uploadsDir, logger)

	repo.StartCleanupWorker(ctx, time.Hour)
	sessions.StartSweeper(ctx, cfg.Marketplace.SessionSweepInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	cancel()

	logger.Info("Server stopped")
}

func initLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if os.Getenv("ENV") == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
		cfg.Level = level
	}
	return cfg.Build()
}

func initDatabase(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func initStore(ctx context.Context, cfg *config.Config, app *firebase.App) (docstore.Store, func(), error) {
	if cfg.Store.Type == "memory" {
		return docstore.NewMemoryStore(), func() {}, nil
	}
	if app == nil {
		return nil, nil, errors.New("STORE_TYPE=firestore requires FIREBASE_PROJECT_ID")
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore client: %w", err)
	}
	store := docstore.NewFirestoreStore(client)
	return store, func() { _ = store.Close() }, nil
}

// initStorage returns the blob store and, for local storage, the directory
// to serve under /uploads.
func initStorage(ctx context.Context, cfg *config.Config, app *firebase.App) (storage.BlobStorage, string, error) {
	switch cfg.Storage.Type {
	case "s3":
		s, err := storage.NewS3Storage(ctx, storage.S3Options{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			PublicURL:       cfg.Storage.PublicURL,
		})
		return s, "", err
	case "firebase":
		if app == nil {
			return nil, "", errors.New("STORAGE_TYPE=firebase requires FIREBASE_PROJECT_ID")
		}
		client, err := app.Storage(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("firebase storage client: %w", err)
		}
		bucket, err := client.DefaultBucket()
		if err != nil {
			return nil, "", fmt.Errorf("firebase storage bucket: %w", err)
		}
		return storage.NewFirebaseStorage(bucket, cfg.Firebase.StorageBucket), "", nil
	default:
		s, err := storage.NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.LocalBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.BasePath(), nil
	}
}

func initIdentity(ctx context.Context, cfg *config.Config, repo *repository.PostgresRepository, logger *zap.Logger) (auth.IdentityProvider, error) {
	if cfg.Identity.Provider == "firebase" {
		return auth.NewFirebaseIdentity(ctx, cfg.Firebase.APIKey, logger)
	}
	google := auth.NewGoogleAuthVerifier(cfg.Google.ClientIDs)
	if !google.IsConfigured() {
		logger.Warn("Google sign-in is NOT configured - set GOOGLE_CLIENT_ID to enable")
	}
	return auth.NewLocalIdentity(repo, google), nil
}
