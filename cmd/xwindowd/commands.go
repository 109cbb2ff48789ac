package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xwindow/pkg/observability/xlog"
	"github.com/omeyang/xwindow/pkg/resilience/xlimit"
)

const (
	defaultListen          = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultBreakerTimeout  = 30 * time.Second
	defaultReadTimeout     = 5 * time.Second
)

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func createCommands() []*cli.Command {
	return []*cli.Command{
		createServeCommand(),
		createCheckCommand(),
		createValidateCommand(),
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "规则配置文件路径 (.yaml/.yml/.json)",
			Sources: cli.EnvVars("XWINDOW_CONFIG"),
		},
		&cli.StringFlag{
			Name:  "section",
			Usage: "配置文件中限流配置所在的路径，为空表示整个文件",
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "覆盖配置中的计数策略 (naive/atomic/cas)",
		},
	}
}

// createServeCommand 创建 serve 子命令。
func createServeCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis 地址",
			Value:   "127.0.0.1:6379",
			Sources: cli.EnvVars("XWINDOW_REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:  "listen",
			Usage: "HTTP 监听地址",
			Value: defaultListen,
		},
		&cli.BoolFlag{
			Name:  "trust-forwarded",
			Usage: "从 X-Forwarded-For / X-Real-IP 取客户端 IP，仅在受信代理之后开启",
		},
		&cli.StringFlag{
			Name:  "failure-policy",
			Usage: "计数存储不可用时的处理 (open/closed)，为空时返回 503",
		},
		&cli.IntFlag{
			Name:  "breaker-threshold",
			Usage: "连续失败多少次后熔断计数存储",
			Value: 5,
		},
		&cli.DurationFlag{
			Name:  "breaker-timeout",
			Usage: "熔断打开后多久尝试恢复",
			Value: defaultBreakerTimeout,
		},
		&cli.DurationFlag{
			Name:  "shutdown-timeout",
			Usage: "优雅关闭的最长等待时间",
			Value: defaultShutdownTimeout,
		},
	)
	return &cli.Command{
		Name:   "serve",
		Usage:  "启动 HTTP 服务，/api/ 下的请求经过限流",
		Flags:  flags,
		Action: cmdServe,
	}
}

// createCheckCommand 创建 check 子命令。
func createCheckCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:  "redis-addr",
			Usage: "Redis 地址，为空时使用进程内存储",
		},
		&cli.StringFlag{Name: "account", Usage: "accountId"},
		&cli.StringFlag{Name: "ip", Usage: "clientIp"},
		&cli.StringFlag{Name: "type", Usage: "requestType"},
		&cli.IntFlag{
			Name:  "count",
			Usage: "连续判定的次数",
			Value: 1,
		},
	)
	return &cli.Command{
		Name:   "check",
		Usage:  "对一个描述符执行判定并输出结果（被限流时退出码为 1）",
		Flags:  flags,
		Action: cmdCheck,
	}
}

// createValidateCommand 创建 validate 子命令。
func createValidateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "加载并验证规则配置",
		Flags:  configFlags(),
		Action: cmdValidate,
	}
}

// =============================================================================
// 命令实现
// =============================================================================

func cmdServe(ctx context.Context, cmd *cli.Command) error {
	logger, cleanup, err := buildLogger(cmd)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer cleanup() //nolint:errcheck // 退出路径

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       []string{cmd.String("redis-addr")},
		DialTimeout: defaultReadTimeout,
	})
	defer rdb.Close() //nolint:errcheck // 退出路径

	redisStore, err := xlimit.NewRedisStore(rdb)
	if err != nil {
		return err
	}
	store, err := xlimit.NewBreakerStore(redisStore,
		xlimit.WithBreakerThreshold(uint32(max(cmd.Int("breaker-threshold"), 1))),
		xlimit.WithBreakerTimeout(cmd.Duration("breaker-timeout")),
		xlimit.WithBreakerOnStateChange(func(name, from, to string) {
			logger.Warn(context.Background(), "counter store breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from),
				slog.String("to", to),
			)
		}),
	)
	if err != nil {
		return err
	}

	limiter, err := xlimit.New(store, xlimit.WithConfig(cfg), xlimit.WithLogger(logger))
	if err != nil {
		return err
	}
	defer limiter.Close() //nolint:errcheck // 退出路径

	checker, err := withFailurePolicy(limiter, cmd.String("failure-policy"), logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cmd.String("listen"))
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler: newServeHandler(checker,
			func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			cmd.Bool("trust-forwarded"),
		),
		ReadHeaderTimeout: defaultReadTimeout,
	}
	logger.Info(ctx, "xwindowd listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("strategy", string(cfg.Strategy)),
		slog.Int("rules", len(cfg.Rules)),
	)
	return serveHTTP(ctx, srv, ln, cmd.Duration("shutdown-timeout"))
}

func cmdCheck(ctx context.Context, cmd *cli.Command) error {
	logger, cleanup, err := buildLogger(cmd)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer cleanup() //nolint:errcheck // 退出路径

	d := xlimit.NewDescriptor(cmd.String("account"), cmd.String("ip"), cmd.String("type"))
	if d.IsEmpty() {
		return &usageError{msg: "at least one of --account, --ip, --type is required"}
	}
	count := cmd.Int("count")
	if count < 1 {
		return &usageError{msg: "--count must be positive"}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var store xlimit.CounterStore = xlimit.NewMemoryStore()
	if addr := cmd.String("redis-addr"); addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		defer rdb.Close() //nolint:errcheck // 退出路径
		if store, err = xlimit.NewRedisStore(rdb); err != nil {
			return err
		}
	}

	limiter, err := xlimit.New(store, xlimit.WithConfig(cfg), xlimit.WithLogger(logger))
	if err != nil {
		return err
	}
	defer limiter.Close() //nolint:errcheck // 退出路径

	w := cmd.Root().Writer
	var last xlimit.Decision
	for i := range count {
		if last, err = limiter.Evaluate(ctx, d); err != nil {
			return err
		}
		printDecision(w, i+1, last)
	}
	if last.Limited {
		return &exitError{code: 1}
	}
	return nil
}

func cmdValidate(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	fmt.Fprintf(w, "key_prefix=%q strategy=%s key_scope=%s threshold=%s rules=%d\n",
		cfg.KeyPrefix, cfg.Strategy, cfg.KeyScope, cfg.Threshold, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		fmt.Fprintf(w, "  [%d] %s allowed=%d interval=%s\n", i, rule.Label(), rule.Allowed, rule.Interval)
	}
	return nil
}

// =============================================================================
// 组装
// =============================================================================

func buildLogger(cmd *cli.Command) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetLevelString(cmd.String("log-level")).
		SetFormat(cmd.String("log-format"))
	if path := cmd.String("log-file"); path != "" {
		b.SetRotation(path,
			xlog.RotateMaxSizeMB(100),
			xlog.RotateMaxBackups(5),
			xlog.RotateCompress(true),
		)
	}
	return b.Build()
}

func loadConfig(cmd *cli.Command) (xlimit.Config, error) {
	path := cmd.String("config")
	if path == "" {
		return xlimit.Config{}, &usageError{msg: "--config is required"}
	}
	cfg, err := xlimit.LoadConfigFile(path, cmd.String("section"))
	if err != nil {
		return xlimit.Config{}, err
	}
	if s := cmd.String("strategy"); s != "" {
		cfg.Strategy = xlimit.Strategy(s)
		if err := cfg.Validate(); err != nil {
			return xlimit.Config{}, &usageError{msg: err.Error()}
		}
	}
	return cfg, nil
}

func withFailurePolicy(l *xlimit.Limiter, policy string, logger xlog.Logger) (xlimit.Checker, error) {
	if policy == "" {
		return l, nil
	}
	p, err := xlimit.NewPolicyLimiter(l, xlimit.FailurePolicy(policy), xlimit.WithPolicyLogger(logger))
	if err != nil {
		return nil, &usageError{msg: err.Error()}
	}
	return p, nil
}

// newServeHandler 组装 HTTP 路由：/api/ 经过限流，/healthz 检查计数存储。
func newServeHandler(checker xlimit.Checker, ping func(context.Context) error, trustForwarded bool) http.Handler {
	extractor := xlimit.NewDescriptorExtractor(xlimit.WithTrustForwarded(trustForwarded))
	mux := http.NewServeMux()
	mux.Handle("/api/", xlimit.HTTPMiddleware(checker, xlimit.WithExtractor(extractor))(http.HandlerFunc(apiHandler)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			http.Error(w, "counter store unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	})
	return mux
}

func apiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck // 客户端断开时无法补救
		"status": "accepted",
		"path":   r.URL.Path,
	})
}

// serveHTTP 在 ln 上提供服务，ctx 取消后优雅关闭。
func serveHTTP(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func printDecision(w io.Writer, n int, dec xlimit.Decision) {
	if !dec.Matched {
		fmt.Fprintf(w, "#%d %s no rule matched, not limited\n", n, dec.Descriptor)
		return
	}
	verdict := "accepted"
	if dec.Limited {
		verdict = "limited"
	}
	fmt.Fprintf(w, "#%d %s rule=%s key=%s count=%d allowed=%d\n",
		n, verdict, dec.Rule.Label(), dec.Key, dec.Count, dec.Allowed())
}

// setupSignalHandler 设置信号处理。
// 第一次信号优雅取消，第二次信号强制退出（退出码 130 = 128 + SIGINT）。
func setupSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()

		<-sigCh
		signal.Stop(sigCh)
		os.Exit(130)
	}()
}
