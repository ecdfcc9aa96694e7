package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/justinMonserrat/plop/infrastructure/blob"
	"github.com/justinMonserrat/plop/infrastructure/cache"
	"github.com/justinMonserrat/plop/infrastructure/db"
	"github.com/justinMonserrat/plop/infrastructure/rt"
	"github.com/justinMonserrat/plop/infrastructure/ws"
	httpHandler "github.com/justinMonserrat/plop/internal/delivery/http"
	"github.com/justinMonserrat/plop/internal/delivery/websocket"
	"github.com/justinMonserrat/plop/internal/repository"
	"github.com/justinMonserrat/plop/internal/usecase"
	"github.com/justinMonserrat/plop/pkg/jwt"
	"github.com/justinMonserrat/plop/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	// Running without a .env file is fine in containers.
	_ = godotenv.Load()

	log := logger.New(os.Getenv("APP_ENV"))
	ctx := context.Background()

	mongoStore, err := db.NewMongoStore(ctx, os.Getenv("MONGODB_URI"), os.Getenv("MONGODB_DATABASE"))
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connection failed")
	}
	defer mongoStore.Close(ctx)
	log.Info().Msg("connected to mongodb")

	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("index creation failed")
	}

	// Repositories
	profileRepo := repository.NewProfileRepository(*mongoStore.DB)
	convRepo := repository.NewConversationRepository(*mongoStore.DB)
	messageRepo := repository.NewMessageRepository(*mongoStore.DB)
	notifRepo := repository.NewNotificationRepository(*mongoStore.DB)
	followRepo := repository.NewFollowRepository(*mongoStore.DB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(*mongoStore.DB)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-this-in-production"
		log.Warn().Msg("using default JWT secret, set JWT_SECRET for production")
	}

	// Access token: 15 minutes, refresh token: 30 days
	jwtManager := jwt.NewJWTManager(jwtSecret, 15*time.Minute, 30*24*time.Hour)

	baseURL := os.Getenv("PUBLIC_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	blobs, err := blob.NewGridFSStore(mongoStore.DB, "message-images", baseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}

	// Realtime feed: Redis fan-out when configured, in-process otherwise.
	var feed rt.Feed
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		log.Info().Str("addr", redisAddr).Msg("using redis feed")
		feed = rt.NewRedisFeed(redisAddr, log)
	} else {
		log.Info().Msg("using in-memory feed (single server)")
		feed = rt.NewMemoryFeed()
	}

	profileCache := cache.NewMemCache(time.Minute)
	defer profileCache.Close()

	// Usecases
	authUc := usecase.NewAuthUsecase(profileRepo, refreshTokenRepo, jwtManager)
	notifUc := usecase.NewNotificationUsecase(notifRepo, feed, log)
	profileUc := usecase.NewProfileUsecase(profileRepo, followRepo, notifUc, log)
	convUc := usecase.NewConversationUsecase(convRepo, profileRepo, messageRepo, profileCache, log)
	msgUc := usecase.NewMessageUsecase(messageRepo, convRepo, blobs, feed, log)

	hub := ws.NewHub(log)
	go hub.Run()

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(corsMiddleware)

	websocketH := websocket.NewWebsocketHandler(hub, authUc, convUc, msgUc, notifUc, feed, log)
	httpH := httpHandler.NewHttpHandler(convUc, msgUc, notifUc, profileUc, blobs, log)
	authH := httpHandler.NewAuthHandler(authUc, log)
	authMiddleware := httpHandler.NewAuthMiddleware(authUc)

	httpHandler.MapHttpRoutes(router, httpH, websocketH, authH, authMiddleware)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info().Str("port", port).Msg("http server is running")
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "http://localhost:3000")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
