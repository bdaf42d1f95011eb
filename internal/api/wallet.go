package api

import (
	"context"  // Context for Redis operations
	"errors"   // Sentinel error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"ledger_core/internal/domain" // Importing domain models
	"ledger_core/internal/engine" // Transfer/deposit engine
	"ledger_core/internal/ledger" // Ledger store errors
	"ledger_core/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// TransferRequest represents a transfer request
type TransferRequest struct {
	ToUsername  string          `json:"to_username" binding:"required"` // Target username
	Amount      decimal.Decimal `json:"amount"`                         // Transfer amount
	ReferenceID string          `json:"reference_id"`                   // Optional idempotency key
}

// DepositRequest represents a deposit request
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`       // Deposit amount
	ReferenceID string          `json:"reference_id"` // Optional idempotency key
}

// errorStatus maps engine and store errors onto HTTP responses.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrNonPositiveAmount):
		return http.StatusBadRequest, "Amount must be greater than zero"
	case errors.Is(err, engine.ErrSelfTransfer):
		return http.StatusBadRequest, "Cannot transfer to yourself"
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "Insufficient balance"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "Wallet not found"
	case errors.Is(err, ledger.ErrLockWait):
		return http.StatusConflict, "Wallet busy, please retry"
	default:
		return http.StatusInternalServerError, "Operation failed"
	}
}

// TransferHandler moves funds from the authenticated user to another user's
// wallet. Retrying with the same reference_id is safe: the engine reports
// already_applied instead of moving funds twice.
func TransferHandler(db *gorm.DB, eng *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		fromUserID, exists := c.Get("userID") // Get userID from context
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req TransferRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// The username is resolved here; the engine works with user ids only.
		var toUser domain.User
		if err := db.Where("username = ?", req.ToUsername).First(&toUser).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Target user not found"})
			return
		}
		result, err := eng.Transfer(c.Request.Context(), fromUserID.(uint), toUser.ID, req.Amount, req.ReferenceID)
		if err != nil {
			status, msg := errorStatus(err)
			logrus.WithFields(logrus.Fields{
				"request_id":   c.GetString("requestID"),
				"from_user_id": fromUserID,
				"to_user_id":   toUser.ID,
				"amount":       req.Amount.String(),
				"error":        err.Error(),
			}).Error("Transfer failed")
			c.JSON(status, gin.H{"error": msg})
			return
		}
		// Invalidate wallet and transaction history cache for both users
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			utils.InvalidateUserCaches(context.Background(), rdb, fromUserID.(uint), toUser.ID)
		}
		if result.AlreadyApplied {
			c.JSON(http.StatusOK, gin.H{"status": "already_applied"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "completed", "balance": result.SenderBalance})
	}
}

// DepositHandler credits the authenticated user's wallet.
func DepositHandler(eng *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		result, err := eng.Deposit(c.Request.Context(), userID.(uint), req.Amount, req.ReferenceID)
		if err != nil {
			status, msg := errorStatus(err)
			logrus.WithFields(logrus.Fields{
				"request_id": c.GetString("requestID"),
				"user_id":    userID,
				"amount":     req.Amount.String(),
				"error":      err.Error(),
			}).Error("Deposit failed")
			c.JSON(status, gin.H{"error": msg})
			return
		}
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			utils.InvalidateUserCaches(context.Background(), rdb, userID.(uint))
		}
		if result.AlreadyApplied {
			c.JSON(http.StatusOK, gin.H{"status": "already_applied"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "completed", "balance": result.Balance})
	}
}

// CreateWalletHandler provisions the authenticated user's wallet. Repeat
// calls return the existing wallet (one wallet per user).
func CreateWalletHandler(eng *engine.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		wallet, err := eng.CreateWalletForUser(c.Request.Context(), userID.(uint))
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"error":   err.Error(),
			}).Error("Failed to create wallet")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create wallet"})
			return
		}
		if rdb, ok := c.MustGet("redisClient").(*redis.Client); ok {
			utils.InvalidateUserCaches(context.Background(), rdb, userID.(uint))
		}
		c.JSON(http.StatusOK, gin.H{"wallet": wallet})
	}
}

// GetWalletHandler returns the authenticated user's balance. Snapshot read,
// cached for 60 seconds; never blocks a running transfer.
func GetWalletHandler(eng *engine.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()
		cacheKey := utils.WalletCacheKey(userID.(uint))
		var wallet domain.Wallet
		found, err := utils.GetCache(ctx, rdb, cacheKey, &wallet)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		walletPtr, err := eng.Wallet(c.Request.Context(), userID.(uint))
		if err != nil {
			status, msg := errorStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, walletPtr, 60*time.Second)
		c.JSON(http.StatusOK, gin.H{"wallet": walletPtr, "cached": false})
	}
}

// GetTransactionHistoryHandler returns the authenticated user's transactions
// newest first, paginated and cached for 60 seconds.
func GetTransactionHistoryHandler(eng *engine.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page := 1      // Default page
		pageSize := 20 // Default page size
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v
			}
		}
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v
			}
		}
		ctx := context.Background()
		cacheKey := utils.HistoryCacheKey(userID.(uint), page, pageSize)
		var cached struct {
			Transactions []domain.Transaction `json:"transactions"`
			Page         int                  `json:"page"`
			PageSize     int                  `json:"page_size"`
			Total        int64                `json:"total"`
			TotalPages   int                  `json:"total_pages"`
		}
		found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
		if err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions,
				"page":         cached.Page,
				"page_size":    cached.PageSize,
				"total":        cached.Total,
				"total_pages":  cached.TotalPages,
				"cached":       true,
			})
			return
		}
		transactions, total, err := eng.History(c.Request.Context(), userID.(uint), page, pageSize)
		if err != nil {
			status, msg := errorStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"transactions": transactions,
			"page":         page,
			"page_size":    pageSize,
			"total":        total,
			"total_pages":  totalPages,
			"cached":       false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		c.JSON(http.StatusOK, resp)
	}
}
