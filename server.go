package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/docsync"
	"bitbucket.org/mmdatafocus/docs_backend/handlers"
	"bitbucket.org/mmdatafocus/docs_backend/middlewares"
	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	indexClient, err := docsync.NewClientFromEnv()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "docsync"}).
			Warn("doc index client not configured; sync jobs will fail until it is: " + err.Error())
	}
	// DB handles are attached after the connection is established below; the
	// readiness gate keeps requests out until then.
	service := docsync.NewService(nil, logger, indexClient)
	dispatcher := docsync.NewDispatcher(nil, logger, service.HandleJob)

	r.POST("/auth/login", handlers.LoginHandler())
	r.POST("/auth/logout", middlewares.RequireAuth(), handlers.LogoutHandler())
	r.POST("/auth/refresh", middlewares.RequireAuth(), handlers.RefreshHandler())
	r.POST("/auth/confirm", handlers.ConfirmUserHandler())

	r.POST("/pubsub/sync-jobs", docsync.PubSubPushHandler(dispatcher))

	api := r.Group("/api", middlewares.RequireAuth())

	documents := api.Group("/documents")
	documents.GET("", middlewares.RequirePermission("read", "documents"), docsync.ListDocumentsHandler())
	documents.POST("", middlewares.RequirePermission("create", "documents"), docsync.CreateDocumentHandler(service))
	documents.GET("/statistics", middlewares.RequirePermission("read", "documents"), docsync.StatisticsHandler())
	documents.GET("/export", middlewares.RequirePermission("export", "documents"), docsync.ExportDocumentsHandler())
	documents.POST("/upload", middlewares.RequirePermission("create", "documents"), docsync.UploadDocumentHandler(service))
	documents.POST("/unload", middlewares.RequirePermission("create", "documents"), docsync.UnloadDocumentHandler(service))
	documents.GET("/:id", middlewares.RequirePermission("read", "documents"), docsync.GetDocumentHandler())
	documents.PUT("/:id", middlewares.RequirePermission("update", "documents"), docsync.UpdateDocumentHandler(service))
	documents.DELETE("/:id", middlewares.RequirePermission("delete", "documents"), docsync.DeleteDocumentHandler(service))
	documents.GET("/:id/download", middlewares.RequirePermission("read", "documents"), docsync.DownloadDocumentHandler(service))
	documents.POST("/:id/sync", middlewares.RequirePermission("sync", "documents"), docsync.SyncDocumentHandler(service))
	documents.POST("/:id/resync", middlewares.RequirePermission("sync", "documents"), docsync.ResyncDocumentHandler(service))
	documents.POST("/:id/unsync", middlewares.RequirePermission("sync", "documents"), docsync.UnsyncDocumentHandler(service))

	documentTypes := api.Group("/document-types")
	documentTypes.GET("", middlewares.RequirePermission("read", "references"), handlers.ListDocumentTypesHandler())
	documentTypes.POST("", middlewares.RequirePermission("create", "references"), handlers.CreateDocumentTypeHandler())
	documentTypes.PUT("/:id", middlewares.RequirePermission("update", "references"), handlers.UpdateDocumentTypeHandler())
	documentTypes.DELETE("/:id", middlewares.RequirePermission("delete", "references"), handlers.DeleteDocumentTypeHandler())

	documentFields := api.Group("/document-fields")
	documentFields.GET("", middlewares.RequirePermission("read", "references"), handlers.ListDocumentFieldsHandler())
	documentFields.POST("", middlewares.RequirePermission("create", "references"), handlers.CreateDocumentFieldHandler())
	documentFields.PUT("/:id", middlewares.RequirePermission("update", "references"), handlers.UpdateDocumentFieldHandler())
	documentFields.DELETE("/:id", middlewares.RequirePermission("delete", "references"), handlers.DeleteDocumentFieldHandler())

	issuingBodies := api.Group("/issuing-bodies")
	issuingBodies.GET("", middlewares.RequirePermission("read", "references"), handlers.ListIssuingBodiesHandler())
	issuingBodies.POST("", middlewares.RequirePermission("create", "references"), handlers.CreateIssuingBodyHandler())
	issuingBodies.PUT("/:id", middlewares.RequirePermission("update", "references"), handlers.UpdateIssuingBodyHandler())
	issuingBodies.DELETE("/:id", middlewares.RequirePermission("delete", "references"), handlers.DeleteIssuingBodyHandler())

	users := api.Group("/users")
	users.GET("", middlewares.RequirePermission("read", "users"), handlers.ListUsersHandler())
	users.POST("", middlewares.RequirePermission("create", "users"), handlers.CreateUserHandler())
	users.PUT("/:id", middlewares.RequirePermission("update", "users"), handlers.UpdateUserHandler())
	users.DELETE("/:id", middlewares.RequirePermission("delete", "users"), handlers.DeleteUserHandler())

	roles := api.Group("/roles")
	roles.GET("", middlewares.RequirePermission("read", "roles"), handlers.ListRolesHandler())
	roles.POST("", middlewares.RequirePermission("create", "roles"), handlers.CreateRoleHandler())
	roles.GET("/:id", middlewares.RequirePermission("read", "roles"), handlers.GetRoleHandler())
	roles.PUT("/:id", middlewares.RequirePermission("update", "roles"), handlers.UpdateRoleHandler())
	roles.DELETE("/:id", middlewares.RequirePermission("delete", "roles"), handlers.DeleteRoleHandler())

	api.GET("/modules", handlers.ListModulesHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the sync job dispatcher (claims AFTER commit).
	service.DB = db
	dispatcher.DB = db
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	go dispatcher.Run(dispatcherCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelDispatcher()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{"correlation_id": cid}).Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
