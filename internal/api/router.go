package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"inpeak-backend/config"
	adminGrading "inpeak-backend/internal/api/v1/admin/grading"
	"inpeak-backend/internal/api/v1/answer"
	mediaRoutes "inpeak-backend/internal/api/v1/media"
	"inpeak-backend/internal/media"
	"inpeak-backend/internal/middleware"
	"inpeak-backend/internal/services"
	"inpeak-backend/internal/utils"
)

// Deps are the collaborators the HTTP layer needs. Redis is optional.
type Deps struct {
	Config      *config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Redis       *redis.Client
	Submissions *services.SubmissionService
	Media       *media.Service
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Logger(deps.Log.Named("http")))

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.GET("/healthz", healthHandler(deps))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		authorized := v1.Group("/")
		authorized.Use(middleware.AuthMiddleware(deps.Config.JWTSecret))
		{
			answer.RegisterRoutes(authorized, answer.NewHandler(deps.Submissions))
			if deps.Media != nil {
				mediaRoutes.RegisterRoutes(authorized, mediaRoutes.NewHandler(deps.Media))
			}
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(deps.Config.JWTSecret), middleware.AdminAuthMiddleware(deps.Log))
		{
			adminGrading.RegisterRoutes(admin, adminGrading.NewHandler(deps.Submissions))
		}
	}

	return router
}

func healthHandler(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok"}
		healthy := true

		sqlDB, err := deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}

		if deps.Redis != nil {
			checks["redis"] = "ok"
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}

		if !healthy {
			c.JSON(http.StatusServiceUnavailable, utils.NewResponse(http.StatusServiceUnavailable, "unhealthy", checks))
			return
		}
		c.JSON(http.StatusOK, utils.NewSuccessResponse("ok", checks))
	}
}
