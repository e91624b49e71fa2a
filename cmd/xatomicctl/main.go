//go:build !windows

// xatomicctl 在分布式锁保护下执行命令，同一锁下同时最多一个命令在运行。
//
// 用法:
//
//	xatomicctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config         配置文件（.yaml/.yml/.json）
//	    --backend        锁后端 redis|etcd|local (默认: redis)
//	    --redis-addr     Redis 地址，可重复；多个地址时使用 Redlock
//	    --etcd-endpoint  etcd 地址，可重复
//	    --key-prefix     锁 key 前缀 (默认: lock:)
//	    --max-wait       最长等待时间 (默认: 1h)
//	    --expiry         锁过期时间 (默认: 8s)，run 持锁期间每 1/3 过期时间续期一次
//	    --trace          把 OpenTelemetry 跨度以 JSON 输出到 stderr
//	    --breaker        启用熔断，后端连续失败时快速失败
//	    --log-level      日志级别 debug|info|warn|error
//	    --log-format     日志格式 text|json
//	    --log-file       日志文件，按大小轮转
//
// 命令行选项覆盖配置文件中的同名配置。
//
// 命令:
//
//	run <key> -- <command> [args...]   持锁执行命令
//	probe <key>                        检查锁是否空闲
//
// 退出码:
//
//	0: 成功（probe: 锁空闲）
//	1: 执行失败、等待超时或执行期间锁丢失（probe: 锁被占用）
//	2: 参数错误
//	其他: run 命令中子进程的退出码，子进程被信号终止时为 128+信号值
//
// run 持锁期间收到终止信号时，先向子进程发送 SIGTERM，子进程退出并释放锁后
// 本进程再按该信号退出。
//
// 示例:
//
//	xatomicctl run nightly-report -- ./report.sh --full
//	xatomicctl --backend etcd --etcd-endpoint 10.0.0.1:2379 run migrate -- ./migrate up
//	xatomicctl -c /etc/xatomic.yaml probe nightly-report
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// createApp 创建 CLI 应用。
func createApp(stdin io.Reader, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xatomicctl",
		Usage:     "在分布式锁保护下执行命令",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags:     globalFlags(),
		Commands:  createCommands(),
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		// 禁止 urfave/cli 直接调用 os.Exit，由 run() 统一映射退出码
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := createApp(stdin, stdout, stderr)

	if err := app.Run(ctx, args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			fmt.Fprintf(stderr, "参数错误: %v\n", err)
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// isCLIUsageError 识别 urfave/cli 解析参数时产生的错误。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{
		"flag provided but not defined",
		"invalid value",
		"flag needs an argument",
		"No help topic for",
	} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}
