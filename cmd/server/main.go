package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging
	"time"    // Lock wait duration

	"ledger_core/internal/api"        // Custom package for API handlers
	"ledger_core/internal/config"     // Custom package for configuration
	"ledger_core/internal/domain"     // Importing domain models
	"ledger_core/internal/engine"     // Transfer/deposit engine
	"ledger_core/internal/ledger"     // Ledger store
	"ledger_core/internal/middleware" // Custom package for middleware

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Connect to the database
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Wire the ledger store and the engine on top of it. Transaction
	// descriptions name the counterparty by username.
	store := ledger.NewGormStore(db, time.Duration(cfg.LockWaitSeconds)*time.Second)
	eng := engine.New(store, func(ctx context.Context, userID uint) (string, error) {
		var user domain.User
		if err := db.WithContext(ctx).Select("username").First(&user, userID).Error; err != nil {
			return "", err
		}
		return user.Username, nil
	})

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}
	r.Use(middleware.RequestIDMiddleware())

	// Auth routes
	r.POST("/user", api.RegisterHandler(db, eng))       // Registration endpoint, provisions the wallet
	r.GET("/user", api.LoginHandler(db, cfg.JWTSecret)) // Login endpoint

	// Wallet routes (protected by JWT)
	walletGroup := r.Group("/wallet")
	// Protect wallet routes with JWT middleware and inject Redis client into context
	walletGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		c.Set("redisClient", redisClient)
		c.Next()
	})
	walletGroup.POST("", api.CreateWalletHandler(eng))                                  // Create wallet endpoint
	walletGroup.GET("", api.GetWalletHandler(eng, redisClient))                         // Get wallet endpoint
	walletGroup.POST("/deposit", api.DepositHandler(eng))                               // Deposit endpoint
	walletGroup.POST("/transfer", api.TransferHandler(db, eng))                         // Transfer endpoint
	walletGroup.GET("/transactions", api.GetTransactionHistoryHandler(eng, redisClient)) // Transaction history endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
