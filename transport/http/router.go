package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Madhoneybees/discord-nft-verifier/internal/log"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

// SetupRouter sets up the Gin router. gatherer may be nil to leave out
// /metrics.
func SetupRouter(handlers *Handlers, tokenizer ports.Tokenizer, gatherer prometheus.Gatherer, logger log.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	// Verification flow
	verify := router.Group("/verify")
	{
		verify.POST("/challenge", handlers.Challenge)
		verify.POST("/signature", handlers.Signature)
	}

	// Member API
	api := router.Group("/api")
	api.Use(AuthMiddleware(tokenizer))
	{
		api.GET("/me", handlers.Me)
	}

	// Operator API
	admin := router.Group("/admin")
	admin.Use(AdminMiddleware(tokenizer))
	{
		admin.GET("/stats", handlers.Stats)
		admin.POST("/verify-all", handlers.VerifyAll)
		admin.POST("/users/:id/reset", handlers.ResetUser)
	}

	return router
}
