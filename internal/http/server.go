package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/open-builders/adkamai/docs"
	"github.com/open-builders/adkamai/internal/common/config"
	"github.com/open-builders/adkamai/internal/common/middleware"
	rewardhttp "github.com/open-builders/adkamai/internal/features/reward/delivery/http"
	"github.com/open-builders/adkamai/internal/features/reward/models"
)

const serviceName = "adkamai"

// Check is one readiness dependency.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Config  *config.Config
	Rewards *rewardhttp.RewardHandler
	// Webhook receives Telegram updates; nil in long-polling mode.
	Webhook http.Handler
	Checks  []Check
}

// NewRouter builds the gin engine with middleware and every route wired.
func NewRouter(d Deps) *gin.Engine {
	if !d.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.Config.Server.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 || corsConfig.AllowOrigins[0] == "*" {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", middleware.InitDataHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/", index)
	router.GET("/health-check", healthCheck)
	router.GET("/ready", readiness(d.Checks))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	tg := d.Config.Telegram
	d.Rewards.RegisterRoutes(router, middleware.TelegramInitData(tg.BotToken, tg.InitDataMaxAge, tg.RequireInitData))

	if d.Webhook != nil && tg.WebhookPath != "" {
		router.POST(tg.WebhookPath, gin.WrapH(d.Webhook))
	}

	return router
}

// NewServer wraps handler in an http.Server with the usual timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func index(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running")
}

// @Summary Liveness probe
// @Tags system
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health-check [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{Status: "ok", Service: serviceName})
}

// @Summary Readiness probe
// @Description Pings the account store and Redis.
// @Tags system
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Failure 503 {object} models.HealthResponse
// @Router /ready [get]
func readiness(checks []Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		for _, check := range checks {
			if err := check.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, models.HealthResponse{
					Status:  "unready",
					Service: serviceName,
					Error:   check.Name + " unavailable: " + err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, models.HealthResponse{Status: "ready", Service: serviceName})
	}
}
