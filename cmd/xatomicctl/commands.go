//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xatomic/pkg/distributed/xatomic"
	"github.com/omeyang/xatomic/pkg/distributed/xdlock"
	"github.com/omeyang/xatomic/pkg/observability/xlog"
	"github.com/omeyang/xatomic/pkg/observability/xmetrics"
)

// exitError 需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "配置文件（.yaml/.yml/.json）",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "锁后端 redis|etcd|local",
			Value: backendRedis,
		},
		&cli.StringSliceFlag{
			Name:  "redis-addr",
			Usage: "Redis 地址，可重复",
		},
		&cli.StringSliceFlag{
			Name:  "etcd-endpoint",
			Usage: "etcd 地址，可重复",
		},
		&cli.StringFlag{
			Name:  "key-prefix",
			Usage: "锁 key 前缀",
			Value: "lock:",
		},
		&cli.DurationFlag{
			Name:  "max-wait",
			Usage: "最长等待时间",
			Value: xatomic.DefaultMaxWait,
		},
		&cli.DurationFlag{
			Name:  "expiry",
			Usage: "锁过期时间",
			Value: 8 * time.Second,
		},
		&cli.BoolFlag{
			Name:  "breaker",
			Usage: "启用熔断",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "把 OpenTelemetry 跨度以 JSON 输出到 stderr",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "日志级别 debug|info|warn|error",
			Value: "info",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "日志格式 text|json",
			Value: "text",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "日志文件",
		},
	}
}

// createCommands 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createRunCommand(),
		createProbeCommand(),
	}
}

func createRunCommand() *cli.Command {
	// key 之后的参数原样交给子进程
	stopAfterKey := 1
	return &cli.Command{
		Name:         "run",
		Usage:        "持锁执行命令",
		ArgsUsage:    "<key> -- <command> [args...]",
		StopOnNthArg: &stopAfterKey,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) > 1 && args[1] == "--" {
				args = append(args[:1:1], args[2:]...)
			}
			if len(args) < 2 {
				return &usageError{msg: "run 需要 <key> 和要执行的命令"}
			}
			return withSession(ctx, cmd, func(s *session) error {
				return cmdRun(ctx, s, args[0], args[1:])
			})
		},
	}
}

func createProbeCommand() *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "检查锁是否空闲（空闲时退出码 0，被占用时 1）",
		ArgsUsage: "<key>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "probe 需要且只需要一个 <key>"}
			}
			return withSession(ctx, cmd, func(s *session) error {
				return cmdProbe(ctx, s, cmd.Args().First())
			})
		},
	}
}

// childWaitDelay 子进程收到 SIGTERM 后等待其退出的时间，超时后强制结束
const childWaitDelay = 2 * time.Second

// hookRegistry 持锁期间处理终止信号的注册表
var hookRegistry = xatomic.DefaultHooks

// session 一次命令执行所需的配置、日志、观测和锁工厂。
type session struct {
	cfg      *Config
	logger   xlog.Logger
	factory  xdlock.Factory
	observer xmetrics.Observer
	hooks    xatomic.HookRegistry
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
}

func withSession(ctx context.Context, cmd *cli.Command, fn func(s *session) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	root := cmd.Root()

	logger, closeLog, err := newLogger(cfg.Log, root.ErrWriter)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() { err = errors.Join(err, closeLog()) }()
	// 信号钩子等未显式注入日志器的组件使用全局日志器
	xlog.SetDefault(logger)
	defer xlog.ResetDefault()

	observer, shutdownTrace, err := newObserver(cfg.Trace, root.ErrWriter)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ReleaseTimeout)
		defer cancel()
		err = errors.Join(err, shutdownTrace(shutdownCtx))
	}()

	factory, closeFactory, err := newFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFactory(); cerr != nil {
			logger.Warn(context.Background(), "close lock backend failed", xlog.Err(cerr))
		}
	}()

	return fn(&session{
		cfg:      cfg,
		logger:   logger,
		factory:  factory,
		observer: observer,
		hooks:    hookRegistry(),
		stdin:    root.Reader,
		stdout:   root.Writer,
		stderr:   root.ErrWriter,
	})
}

// cmdRun 持锁执行子进程，子进程的退出码作为本命令的退出码。
func cmdRun(ctx context.Context, s *session, key string, argv []string) error {
	m, err := xdlock.NewMutex(s.factory, key, s.cfg.mutexOptions()...)
	if err != nil {
		return &usageError{msg: err.Error()}
	}

	work := func(ctx context.Context) (int, error) {
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stdin, c.Stdout, c.Stderr = s.stdin, s.stdout, s.stderr
		// 锁丢失或收到终止信号时先让子进程自行退出
		c.Cancel = func() error { return c.Process.Signal(syscall.SIGTERM) }
		c.WaitDelay = childWaitDelay
		return exitCode(c.Run())
	}

	code, err := xatomic.Do(ctx, m, work,
		xatomic.WithMaxWait(s.cfg.MaxWait),
		xatomic.WithReleaseTimeout(s.cfg.ReleaseTimeout),
		xatomic.WithKeepAlive(s.cfg.keepAliveInterval()),
		xatomic.WithLogger(s.logger.With(xlog.Component("xatomic"))),
		xatomic.WithObserver(s.observer),
		xatomic.WithHookRegistry(s.hooks),
	)
	if err != nil {
		switch {
		case errors.Is(err, xatomic.ErrStaleLock):
			fmt.Fprintf(s.stderr, "等待锁超时: %v\n", err)
			return &exitError{code: 1}
		case errors.Is(err, xatomic.ErrLockLost):
			fmt.Fprintf(s.stderr, "执行期间锁已丢失: %v\n", err)
			return &exitError{code: 1}
		}
		return err
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// exitCode 把子进程的结果转换为退出码。无法启动子进程时返回错误。
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 0, err
	}
	if code := ee.ExitCode(); code >= 0 {
		return code, nil
	}
	// 被信号终止，按 shell 约定返回 128+信号值
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return 1, nil
}

// cmdProbe 尝试获取一次，空闲时立即释放。
func cmdProbe(ctx context.Context, s *session, key string) error {
	m, err := xdlock.NewMutex(s.factory, key, s.cfg.mutexOptions()...)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	ok, err := m.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(s.stdout, "held")
		return &exitError{code: 1}
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ReleaseTimeout)
	defer cancel()
	if err := m.Unlock(releaseCtx); err != nil {
		return fmt.Errorf("release probe lock: %w", err)
	}
	fmt.Fprintln(s.stdout, "free")
	return nil
}
