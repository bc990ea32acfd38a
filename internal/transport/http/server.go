package http

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	appsvc "recipebox/internal/app"
	"recipebox/internal/bootstrap"
	"recipebox/internal/cache"
	"recipebox/internal/platform/rabbitmq"
	s3Client "recipebox/internal/platform/s3"
	"recipebox/internal/repository"
	"recipebox/internal/transport/http/handler"
	"recipebox/internal/transport/http/middleware"
)

// Handlers are the route targets mounted by Register.
type Handlers struct {
	Auth    *handler.AuthHandler
	Recipes *handler.RecipeHandler
	Labels  *handler.LabelHandler
	Health  *handler.HealthHandler
}

func NewRouter(ctx context.Context, app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), gin.Recovery())

	cfg := app.Config
	userRepo := repository.NewUserRepository(app.MySQL)
	recipeRepo := repository.NewRecipeRepository(app.MySQL)
	labelRepo := repository.NewLabelRepository(app.MySQL)
	listCache := cache.NewRecipeCache(app.Redis, time.Duration(cfg.Redis.RecipeListTTLSeconds)*time.Second)
	publisher := rabbitmq.NewCleanupPublisher(app.MQConn, cfg.RabbitMQ.ImageCleanupQueue)

	authService := appsvc.NewAuthService(
		userRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	recipeService := appsvc.NewRecipeService(recipeRepo, labelRepo, userRepo, app.Images, publisher, listCache, app.Logger)
	labelService := appsvc.NewLabelService(labelRepo, recipeRepo, listCache, app.Logger)

	health := handler.NewHealthHandler(
		handler.HealthInfo{App: cfg.App.Name, Env: cfg.App.Env, StartedAt: app.StartedAt},
		map[string]handler.CheckFunc{
			"mysql": func(ctx context.Context) error {
				sqlDB, err := app.MySQL.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error {
				return app.Redis.Ping(ctx).Err()
			},
			"rabbitmq": func(context.Context) error {
				if app.MQConn == nil || app.MQConn.IsClosed() {
					return errors.New("connection closed")
				}
				return nil
			},
			"s3": func(ctx context.Context) error {
				return s3Client.Ping(ctx, app.S3, cfg.S3.Bucket)
			},
		},
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	go limiter.Run(ctx.Done())

	Register(router, cfg.Auth.JWTSecret, limiter, Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Recipes: handler.NewRecipeHandler(recipeService, cfg.Upload.MaxBytes),
		Labels:  handler.NewLabelHandler(labelService),
		Health:  health,
	})
	return router
}

// Register mounts every route on router.
func Register(router *gin.Engine, jwtSecret string, limiter *middleware.RateLimiter, h Handlers) {
	if h.Health != nil {
		router.GET("/healthz", h.Health.Check)
	}

	auth := middleware.AuthJWT(jwtSecret)
	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", auth, h.Auth.Me)

	writeLimit := func(c *gin.Context) { c.Next() }
	if limiter != nil {
		writeLimit = limiter.Middleware()
	}

	recipes := v1.Group("/recipes", auth)
	recipes.POST("", writeLimit, h.Recipes.Create)
	recipes.GET("", h.Recipes.List)
	recipes.GET("/export", h.Recipes.Export)
	recipes.GET("/:id", h.Recipes.Get)
	recipes.PUT("/:id", writeLimit, h.Recipes.Update)
	recipes.DELETE("/:id", h.Recipes.Delete)

	labels := v1.Group("/labels", auth)
	labels.POST("", h.Labels.Add)
	labels.GET("", h.Labels.List)
	labels.PUT("/:id", h.Labels.Rename)
	labels.DELETE("", h.Labels.RemoveRecipe)
}
