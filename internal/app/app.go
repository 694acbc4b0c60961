package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/photo-enhancer/internal/config"
	"github.com/prperemyshlev/photo-enhancer/internal/handler"
	"github.com/prperemyshlev/photo-enhancer/internal/repository"
	"github.com/prperemyshlev/photo-enhancer/internal/retry"
	"github.com/prperemyshlev/photo-enhancer/internal/service"
	"github.com/prperemyshlev/photo-enhancer/internal/utils"
	"github.com/prperemyshlev/photo-enhancer/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

// handlers groups everything setupRoutes mounts
type handlers struct {
	auth    *handler.AuthHandler
	oauth   *handler.OAuthHandler
	photos  *handler.PhotoHandler
	payment *handler.PaymentHandler
	admin   *handler.AdminHandler
	health  *HealthChecker
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres())

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	policy := retry.PolicyFromConfig(cfg.Retry, logger)

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	blacklistService := service.NewTokenBlacklistService(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis())

	paymentService := service.NewPaymentService(
		repos,
		infra.Checkout(),
		cfg.Payment,
		cfg.Photo.ClaimGraceWindow.Duration,
		policy,
		metrics,
		logger,
	)

	photoService := service.NewPhotoService(
		repos.Photo,
		infra.ArtifactStore(),
		infra.Enhancer(),
		cfg.Photo,
		policy,
		metrics,
		logger,
	)

	authService := service.NewAuthService(
		service.AuthDeps{
			Repos:      repos,
			JWTManager: jwtManager,
			Blacklist:  blacklistService,
			Claimer:    paymentService,
			Logger:     logger,
		},
		cfg.Security.BCryptCost,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	oauthService := service.NewOAuthService(cfg.OAuth, service.NewRedisStateStore(infra.Redis()), logger)

	authHandler := handler.NewAuthHandler(authService, handler.CookieConfig{
		Secure:            cfg.Security.SecureCookies,
		AccessTokenMaxAge: int(cfg.JWT.AccessTokenExpiry.Seconds()),
	}, logger)

	h := handlers{
		auth:    authHandler,
		oauth:   handler.NewOAuthHandler(oauthService, authHandler, logger),
		photos:  handler.NewPhotoHandler(photoService, cfg.Photo.MaxUploadBytes, logger),
		payment: handler.NewPaymentHandler(paymentService, logger),
		admin:   handler.NewAdminHandler(paymentService, logger),
		health:  NewHealthChecker(infra),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))
	router.MaxMultipartMemory = cfg.Photo.MaxUploadBytes

	setupRoutes(router, cfg, h, authService, rateLimiter, infra.MetricsHandler(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	h handlers,
	authService service.AuthService,
	limiter service.Limiter,
	metricsHandler http.Handler,
	logger *zap.Logger,
) {
	limit := func(key func(*gin.Context) string) gin.HandlerFunc {
		return handler.RateLimitMiddleware(limiter, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, key, logger)
	}
	requireAuth := handler.AuthMiddleware(authService)
	optionalAuth := handler.OptionalAuthMiddleware(authService)

	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", h.health.Handler)

	router.GET("/auth/google", h.oauth.Start)
	router.GET("/auth/google/callback", h.oauth.Callback)

	router.GET("/payment/success", h.payment.Success)
	router.GET("/payment/cancel", h.payment.Cancel)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/signup", limit(handler.RouteAndIPKey), h.auth.Register)
			auth.POST("/login", limit(handler.RouteAndIPKey), h.auth.Login)
			auth.POST("/refresh", h.auth.Refresh)
			auth.POST("/logout", requireAuth, h.auth.Logout)
			auth.GET("/me", requireAuth, h.auth.GetMe)
			auth.GET("/check", optionalAuth, h.auth.Check)
		}

		api.POST("/enhance", optionalAuth, h.photos.Enhance)
		api.POST("/convert-to-night", optionalAuth, h.photos.ConvertToNight)

		photos := api.Group("/photos", requireAuth)
		{
			photos.GET("", h.photos.List)
			photos.GET("/:id", h.photos.Get)
			photos.GET("/:id/original", h.photos.DownloadOriginal)
			photos.GET("/:id/enhanced", h.photos.DownloadEnhanced)
			photos.DELETE("/:id", h.photos.Delete)
		}

		payment := api.Group("/payment")
		{
			payment.POST("/create-checkout-session", requireAuth, limit(handler.UserOrIPKey), h.payment.CreateCheckoutSession)
			payment.POST("/check-status", requireAuth, h.payment.CheckStatus)
			payment.POST("/webhook", h.payment.Webhook)
		}

		admin := api.Group("/admin", handler.AdminKeyMiddleware(cfg.Security.AdminAPIKey))
		{
			admin.PUT("/users/:id/free-access", h.admin.SetFreeAccess)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
