// xwindowd 是固定窗口限流服务的进程入口。
//
// 用法:
//
//	xwindowd [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	--log-level   日志级别 debug/info/warn/error (默认: info)
//	--log-format  日志格式 text/json (默认: text)
//	--log-file    日志文件路径，设置后按大小轮转
//
// 命令:
//
//	serve      启动 HTTP 服务，/api/ 下的请求经过限流
//	check      对一个描述符执行判定并输出结果
//	validate   加载并验证规则配置
//
// 退出码:
//
//	0: 成功（check: 未被限流）
//	1: 执行失败（check: 被限流）
//	2: 参数错误
//
// 示例:
//
//	xwindowd serve --config rules.yaml --redis-addr 127.0.0.1:6379 --listen :8080
//	xwindowd check --config rules.yaml --account A1 --ip 10.0.0.1 --type GET
//	xwindowd validate --config rules.yaml --section ratelimit
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xwindowd",
		Usage:   "分布式固定窗口限流服务",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "日志级别 (debug/info/warn/error)",
				Value:   "info",
				Sources: cli.EnvVars("XWINDOW_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径，为空时输出到 stderr",
			},
		},
		Commands: createCommands(),
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，由 run() 统一映射退出码。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandler(cancel)

	return exitCode(app.Run(ctx, os.Args))
}

// exitCode 将命令错误映射为退出码。
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	return 1
}
