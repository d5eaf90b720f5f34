package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xboard/internal/client/xboard"
	"xboard/internal/config"
	"xboard/internal/credstore"
	cronrunner "xboard/internal/cron"
	"xboard/internal/handler"
	"xboard/internal/logger"
	"xboard/internal/session"
)

func main() {
	cfgPath := os.Getenv("XB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("XB_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	tokens := credstore.NewFileStore(cfg.Token.Path)
	apiHTTP := &http.Client{Timeout: cfg.API.Timeout}
	apiClient := xboard.NewClient(apiHTTP, cfg.API.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger)
	cronRunner.Start()
	defer cronRunner.Stop()

	sess := session.New(session.Options{
		API:                 apiClient,
		Tokens:              tokens,
		Logger:              logger,
		Scheduler:           cronRunner,
		Clock:               session.RealClock(),
		PollInterval:        cfg.Poll.Interval,
		RemediationCooldown: cfg.Poll.RemediationCooldown,
		RecentOrdersLimit:   cfg.Poll.RecentOrdersLimit,
		OnLogout: func() {
			if err := tokens.Clear(); err != nil {
				logger.Warn("token clear failed", zap.Error(err))
			}
			logger.Info("session ended")
		},
	})

	var (
		sessMu   sync.Mutex
		teardown func()
	)
	startSession := func() {
		sessMu.Lock()
		defer sessMu.Unlock()
		teardown = sess.Initialize(ctx)
	}
	stopSession := func() {
		sessMu.Lock()
		defer sessMu.Unlock()
		if teardown != nil {
			teardown()
			teardown = nil
		}
		if err := tokens.Clear(); err != nil {
			logger.Warn("token clear failed", zap.Error(err))
		}
	}

	if _, ok := tokens.Token(); ok {
		logger.Info("resuming persisted session")
		startSession()
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{Session: sess}
	healthHandler.Register(engine)
	authHandler := &handler.AuthHandler{
		Client:   apiClient,
		Tokens:   tokens,
		Logger:   logger,
		OnLogin:  startSession,
		OnLogout: stopSession,
	}
	authHandler.Register(engine)
	dashboardHandler := &handler.DashboardHandler{Session: sess}
	dashboardHandler.Register(engine)
	streamHandler := &handler.StreamHandler{Session: sess, Logger: logger}
	streamHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	sessMu.Lock()
	if teardown != nil {
		teardown()
		teardown = nil
	}
	sessMu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
