package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"CatalogSync/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type cliContext struct {
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	ctx := &cliContext{}
	root := &cobra.Command{
		Use:           "catalogsync",
		Short:         "扑克赛事视频目录对账工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// 1. 加载配置文件
			cfg, err := config.LoadConfigFrom(ctx.configPath)
			if err != nil {
				return err
			}
			ctx.cfg = cfg
			// 2. 初始化日志
			ctx.logger = newLogger(cfg.Log)
			ctx.logger.Debug("配置文件加载成功")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "配置文件路径（默认 ./config/config.yaml）")

	root.AddCommand(
		newServeCommand(ctx),
		newReconcileCommand(ctx),
		newPatternsCommand(ctx),
	)
	return root
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}
