package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/motofy/rental-backend/internal/config"
	"github.com/motofy/rental-backend/internal/database"
	"github.com/motofy/rental-backend/internal/handlers"
	"github.com/motofy/rental-backend/internal/middleware"
	"github.com/motofy/rental-backend/internal/services"
	"github.com/motofy/rental-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Motofy Rental Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	userRepo := database.NewUserRepository(db)
	vehicleRepo := database.NewVehicleRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	auditRepo := database.NewPaymentAuditRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	cacheService := services.NewCacheService(&cfg.Redis, logger)
	defer cacheService.Close()

	availabilityService := services.NewAvailabilityService(vehicleRepo, bookingRepo, logger)
	bookingService := services.NewBookingService(bookingRepo, vehicleRepo, availabilityService, logger)
	stripeService := services.NewStripeService(&cfg.Payment, logger)
	reconcilerService := services.NewReconcilerService(
		bookingRepo,
		bookingService,
		stripeService,
		auditRepo,
		cacheService,
		logger,
	)
	logger.Info("Services initialized")

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userRepo, jwtService, cfg, logger)
	vehicleHandler := handlers.NewVehicleHandler(vehicleRepo, availabilityService, cacheService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(stripeService, reconcilerService, bookingService, vehicleRepo, auditRepo, logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API routes
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		users := v1.Group("/users", middleware.AuthMiddleware(jwtService))
		{
			users.GET("/profile", authHandler.Profile)
		}

		vehicles := v1.Group("/vehicles")
		{
			vehicles.GET("", vehicleHandler.List)
			vehicles.GET("/:id", vehicleHandler.Get)

			admin := vehicles.Group("", middleware.AuthMiddleware(jwtService), middleware.RequireAdmin())
			{
				admin.POST("", vehicleHandler.Create)
				admin.PUT("/:id", vehicleHandler.Update)
				admin.PATCH("/:id/availability", vehicleHandler.SetAvailability)
			}
		}

		bookings := v1.Group("/bookings", middleware.AuthMiddleware(jwtService))
		{
			bookings.POST("", bookingHandler.Create)
			bookings.GET("/my-bookings", bookingHandler.MyBookings)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.PUT("/:id/cancel", bookingHandler.Cancel)

			admin := bookings.Group("", middleware.RequireAdmin())
			{
				admin.GET("/admin/all", bookingHandler.ListAll)
				admin.PUT("/:id/status", bookingHandler.SetStatus)
			}
		}

		payments := v1.Group("/payments")
		{
			// Webhook is signature-authenticated, not JWT-authenticated.
			payments.POST("/webhook", paymentHandler.Webhook)

			authed := payments.Group("", middleware.AuthMiddleware(jwtService))
			{
				authed.POST("/create-checkout-session", paymentHandler.CreateCheckoutSession)
				authed.GET("/verify/:session_id", paymentHandler.VerifySession)
				authed.GET("/admin/audit/:session_id", middleware.RequireAdmin(), paymentHandler.SessionAudit)
			}
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.WithFields(fields).Error("Request failed")
		case c.Writer.Status() >= 400:
			logger.WithFields(fields).Warn("Request rejected")
		default:
			logger.WithFields(fields).Info("Request completed")
		}
	}
}

// healthCheckHandler returns the service health status
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
			"time":    time.Now().UTC(),
		})
	}
}
