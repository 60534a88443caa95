package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"CatalogSync/internal/api"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动看板 HTTP 服务并按间隔周期对账",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(runCtx, ctx)
		},
	}
}

func serve(ctx context.Context, cli *cliContext) error {
	cfg, log := cli.cfg, cli.logger
	a, err := buildApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 配置Gin运行模式（从配置读取：debug/release）
	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(&cfg.Server, api.Handlers{
		Matching: api.NewMatchingHandler(a.matrix, log),
		Sync:     api.NewSyncHandler(a.reconcile, log),
		NAS:      api.NewNASHandler(a.nas, log),
		Pattern:  api.NewPatternHandler(a.patterns, log),
	}, a.registry, log)
	log.Infof("Gin运行模式: %s", cfg.Server.Mode)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		a.reconcile.Start(ctx, cfg.Sync.Interval, cfg.Sync.OnStart)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("服务启动成功，端口：%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("收到退出信号，正在关闭服务")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("启动服务失败")
			cancel()
			<-loopDone
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP 服务关闭超时")
	}
	<-loopDone
	return nil
}
