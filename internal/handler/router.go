package handler

import (
	"context"
	"net/http"
	"time"

	"postcodejp/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Lookup      *LookupHandler
	Admin       *AdminHandler
	AdminAPIKey string
	DB          Pinger
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.GET("/health", Health(cfg.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	if cfg.Lookup != nil {
		api.GET("/postal-codes/search", cfg.Lookup.Search)
		api.GET("/postal-codes/:code", cfg.Lookup.PostalCode)
		api.GET("/offices/:code", cfg.Lookup.Offices)
		api.GET("/prefectures", cfg.Lookup.Prefectures)
		api.GET("/prefectures/:code/cities", cfg.Lookup.Cities)
	}
	if cfg.Admin != nil {
		admin := api.Group("/admin", APIKey(cfg.AdminAPIKey))
		admin.POST("/sync", cfg.Admin.TriggerSync)
		admin.POST("/sync/diff", cfg.Admin.TriggerDiff)
		admin.GET("/sync/status", cfg.Admin.Status)
		admin.GET("/sync/history", cfg.Admin.History)
	}
	return r
}

// Health godoc
// @Summary  Liveness and database reachability
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Failure  503  {object}  map[string]string
// @Router   /health [get]
func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("health check: database unreachable")
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			evt = log.Error()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
