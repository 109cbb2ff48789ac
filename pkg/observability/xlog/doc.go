// Package xlog 提供基于 log/slog 的结构化日志。
//
// # 设计理念
//
//   - 强制 context 传递，方法签名只接受 slog.Attr
//   - 级别保存在 slog.LevelVar 中，支持运行时调整
//   - Build() 返回 cleanup 函数，负责关闭轮转文件
//
// # 快速开始
//
//	logger, cleanup, err := xlog.New().
//	    SetLevelString("debug").
//	    SetFormat("json").
//	    Build()
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
//	logger.Info(ctx, "limiter ready", slog.Int("rules", 3))
//
// # 日志轮转
//
// SetRotation 使用 lumberjack 按大小轮转日志文件：
//
//	logger, cleanup, _ := xlog.New().
//	    SetRotation("/var/log/xwindowd.log", xlog.RotateMaxSizeMB(50)).
//	    Build()
package xlog
