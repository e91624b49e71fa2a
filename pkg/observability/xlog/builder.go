package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// 轮转默认值
const (
	defaultRotateMaxSizeMB  = 100
	defaultRotateMaxBackups = 7
	defaultRotateMaxAgeDays = 30
)

// ErrNilOutput SetOutput 传入 nil
var ErrNilOutput = errors.New("xlog: output is nil")

// ErrEmptyFilename SetRotation 传入空文件名
var ErrEmptyFilename = errors.New("xlog: rotation filename is empty")

// RotateOption 文件轮转选项
type RotateOption func(*lumberjack.Logger)

// WithMaxSizeMB 单个文件最大大小（MB）
func WithMaxSizeMB(n int) RotateOption {
	return func(l *lumberjack.Logger) {
		if n > 0 {
			l.MaxSize = n
		}
	}
}

// WithMaxBackups 保留的旧文件数量
func WithMaxBackups(n int) RotateOption {
	return func(l *lumberjack.Logger) {
		if n >= 0 {
			l.MaxBackups = n
		}
	}
}

// WithMaxAgeDays 旧文件保留天数
func WithMaxAgeDays(n int) RotateOption {
	return func(l *lumberjack.Logger) {
		if n >= 0 {
			l.MaxAge = n
		}
	}
}

// WithCompress 是否 gzip 压缩旧文件
func WithCompress(on bool) RotateOption {
	return func(l *lumberjack.Logger) {
		l.Compress = on
	}
}

// Builder Logger 构建器。
//
// 配置错误采用 first-error-wins 语义，由 Build 统一返回。
type Builder struct {
	output    io.Writer
	rotator   *lumberjack.Logger
	level     Level
	format    string
	addSource bool
	enrich    bool
	err       error
}

// New 创建 Builder，默认 stderr、Info 级别、text 格式、启用 trace 注入。
func New() *Builder {
	return &Builder{
		output: os.Stderr,
		level:  LevelInfo,
		format: "text",
		enrich: true,
	}
}

func (b *Builder) setErr(err error) {
	if b.err == nil {
		b.err = err
	}
}

// SetOutput 设置输出目标，会覆盖之前的 SetRotation。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		b.setErr(ErrNilOutput)
		return b
	}
	b.output = w
	b.rotator = nil
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.level = level
	return b
}

// SetLevelString 从字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.setErr(err)
		return b
	}
	b.level = level
	return b
}

// SetFormat 设置输出格式：text 或 json
func (b *Builder) SetFormat(format string) *Builder {
	f := strings.ToLower(strings.TrimSpace(format))
	switch f {
	case "text", "json":
		b.format = f
	case "":
		b.format = "text"
	default:
		b.setErr(fmt.Errorf("xlog: unknown format %q", format))
	}
	return b
}

// SetAddSource 是否记录调用位置
func (b *Builder) SetAddSource(on bool) *Builder {
	b.addSource = on
	return b
}

// SetEnrich 是否注入 trace_id / span_id
func (b *Builder) SetEnrich(on bool) *Builder {
	b.enrich = on
	return b
}

// SetRotation 输出到按大小轮转的文件，会覆盖之前的 SetOutput。
func (b *Builder) SetRotation(filename string, opts ...RotateOption) *Builder {
	if strings.TrimSpace(filename) == "" {
		b.setErr(ErrEmptyFilename)
		return b
	}
	r := &lumberjack.Logger{
		Filename:   filepath.Clean(filename),
		MaxSize:    defaultRotateMaxSizeMB,
		MaxBackups: defaultRotateMaxBackups,
		MaxAge:     defaultRotateMaxAgeDays,
		Compress:   true,
		LocalTime:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	b.rotator = r
	b.output = r
	return b
}

// Build 构建 Logger。
//
// 返回的 cleanup 用于关闭轮转文件，未启用轮转时为空操作。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.Level(b.level))

	handlerOpts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: b.addSource,
	}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(b.output, handlerOpts)
	}

	if b.enrich {
		enriched, err := NewEnrichHandler(handler)
		if err != nil {
			return nil, nil, err
		}
		handler = enriched
	}

	cleanup := func() error { return nil }
	if b.rotator != nil {
		rotator := b.rotator
		cleanup = rotator.Close
	}

	return &xlogger{handler: handler, levelVar: levelVar}, cleanup, nil
}
