package internal

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dushixiang/ladder/internal/config"
	"github.com/dushixiang/ladder/internal/handler"
	ladderMiddleware "github.com/dushixiang/ladder/internal/middleware"
	"github.com/dushixiang/ladder/internal/migrate"
	"github.com/dushixiang/ladder/internal/service"
	"github.com/dushixiang/ladder/internal/telegram"
	"github.com/dushixiang/ladder/pkg/nostd"
	"github.com/dushixiang/ladder/web"
	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewLadderApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewLadderApp() orz.Application {
	return &LadderApp{}
}

var _ orz.Application = (*LadderApp)(nil)

type AppComponents struct {
	TradingHandler  *handler.TradingHandler
	SettingsHandler *handler.SettingsHandler
	AuthHandler     *handler.AuthHandler
	SetupHandler    *handler.SetupHandler

	// Trading system services
	TradingLoop     *service.TradingLoop
	MarketService   *service.MarketService
	SnapshotService *service.SnapshotService
	NotifyService   *service.NotifyService
	SettingsService *service.SettingsService
	AuthService     *service.AuthService

	tg *telegram.Telegram
}

type LadderApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *LadderApp) GetComponents() *AppComponents {
	return r.components
}

func (r *LadderApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := migrate.Run(db, logger); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      middleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	e.Use(middleware.StaticWithConfig(middleware.StaticConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().RequestURI
			if strings.HasPrefix(path, "/api") {
				return true
			}
			return false
		},
		Root:       "",
		Index:      "index.html",
		HTML5:      true,
		Browse:     false,
		IgnoreBase: false,
		Filesystem: http.FS(web.Assets()),
	}))

	api := e.Group("/api")
	{
		// 公开路由：初始化与登录
		r.components.SetupHandler.RegisterRoutes(api)
		r.components.AuthHandler.RegisterRoutes(api)

		// 需要认证的路由
		protected := api.Group("", ladderMiddleware.JWTAuth(ladderMiddleware.JWTAuthConfig{
			AuthService: r.components.AuthService,
			Logger:      logger,
		}))
		r.components.AuthHandler.RegisterProtectedRoutes(protected.Group("/auth"))
		r.components.TradingHandler.RegisterRoutes(protected)
		r.components.SettingsHandler.RegisterRoutes(protected)
	}

	return nil
}

func (r *LadderApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Ladder Trading System Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	if err := components.SnapshotService.Start(); err != nil {
		return fmt.Errorf("failed to start snapshot jobs: %v", err)
	}

	if !r.conf.Trading.Enabled {
		logger.Warn("trading loop disabled by configuration")
		return nil
	}

	logger.Info("Trading loop initialized, starting...")

	go func() {
		if err := components.TradingLoop.Start(context.Background()); err != nil {
			logger.Error("trading loop error", zap.Error(err))
		}
	}()
	return nil
}
