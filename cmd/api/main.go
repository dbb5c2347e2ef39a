package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LJTian/Topline/internal/api"
	"github.com/LJTian/Topline/internal/app"
	"github.com/LJTian/Topline/internal/config"
	"github.com/LJTian/Topline/internal/logger"
	"github.com/LJTian/Topline/internal/scheduler"
)

func main() {
	cfg := config.Load()

	a, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("init app failed: %v", err)
	}
	log := a.Log

	// 定时预热两个视图，读请求基本只命中缓存
	s, err := scheduler.New(cfg.CronSpec, a.Aggregator, cfg.RefreshDeadline, logger.For(log, "scheduler"))
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	s.Start()

	opts := api.Options{
		RequestTimeout: cfg.RequestTimeout,
		Stats:          a.Metrics,
		Log:            logger.For(log, "api"),
	}
	if a.Store != nil && a.Store.DB != nil {
		opts.Engagement = a.Store
		opts.Archive = a.Store
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	r := api.NewEngine(logger.For(log, "http"), cfg.BasicAuthUser, cfg.BasicAuthPass)
	api.NewServer(a.Aggregator, opts).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("starting api server at %s ...", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	<-s.Stop().Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	a.Close()
}
