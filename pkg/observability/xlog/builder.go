package xlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrEmptyFilename 表示轮转文件名为空
var ErrEmptyFilename = errors.New("xlog: empty rotation filename")

// Builder 日志配置构建器
type Builder struct {
	output   io.Writer
	levelVar *slog.LevelVar
	format   string
	rotator  *lumberjack.Logger
	err      error
}

// New 创建配置构建器，默认输出到 stderr、text 格式、Info 级别
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: levelVar,
		format:   "text",
	}
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空值视为 text
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// RotateOption 日志轮转选项
type RotateOption func(*lumberjack.Logger)

// RotateMaxSizeMB 单个文件最大体积（MB）
func RotateMaxSizeMB(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxSize = n }
}

// RotateMaxBackups 保留的旧文件数量
func RotateMaxBackups(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxBackups = n }
}

// RotateMaxAgeDays 旧文件保留天数
func RotateMaxAgeDays(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxAge = n }
}

// RotateCompress 是否压缩旧文件
func RotateCompress(enable bool) RotateOption {
	return func(l *lumberjack.Logger) { l.Compress = enable }
}

// SetRotation 输出到按大小轮转的文件
func (b *Builder) SetRotation(filename string, opts ...RotateOption) *Builder {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		b.err = ErrEmptyFilename
		return b
	}
	l := &lumberjack.Logger{
		Filename:   filepath.Clean(filename),
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     7,
	}
	for _, opt := range opts {
		opt(l)
	}
	b.rotator = l
	b.output = l
	return b
}

// Build 构建 Logger 实例
//
// 返回的 cleanup 函数幂等，用于关闭轮转文件。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{Level: b.levelVar}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}

	var once sync.Once
	rotator := b.rotator
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}

	return NewFromHandler(handler, b.levelVar), cleanup, nil
}
