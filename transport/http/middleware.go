package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

const (
	contextSubject = "subjectID"
	contextWallet  = "wallet"
	contextAdmin   = "admin"
)

func bearer(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") || len(auth) == len("Bearer ") {
		return "", false
	}
	return auth[len("Bearer "):], true
}

func abortUnauthorized(c *gin.Context, err error) {
	if errors.Is(err, core.ErrTokenExpired) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
}

// AuthMiddleware creates middleware that validates member access tokens
func AuthMiddleware(tokenizer ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		subjectID, wallet, err := tokenizer.AccessTokenToSubject(token)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Set(contextSubject, subjectID)
		c.Set(contextWallet, wallet)

		c.Next()
	}
}

// AdminMiddleware only lets admin tokens through
func AdminMiddleware(tokenizer ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		name, err := tokenizer.ValidateAdminToken(token)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Set(contextAdmin, name)
		c.Next()
	}
}

// RequestLogger logs each request once it completes
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		keyvals := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if admin := c.GetString(contextAdmin); admin != "" {
			keyvals = append(keyvals, "admin", admin)
		}
		if len(c.Errors) > 0 {
			keyvals = append(keyvals, "err", c.Errors.String())
			logger.Error("request failed", keyvals...)
			return
		}
		logger.Debug("request", keyvals...)
	}
}
