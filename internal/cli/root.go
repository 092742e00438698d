// Package cli 实现 authzctl 命令行工具：通过完整的客户端管道对鉴权服务执行
// check、write、delete、list、health、stats 操作，并提供一个内存版的本地服务。
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/ceyewan/authzkit/client"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/config"
	"github.com/ceyewan/authzkit/trace"
)

// globalFlags 全局参数，非空时覆盖配置文件
type globalFlags struct {
	configFile string
	output     string
	grpcAddr   string
	restURL    string
	strategy   string
	timeout    time.Duration
	verbose    bool
}

// app 一次命令执行的上下文
type app struct {
	flags     globalFlags
	cfg       *client.Config
	stopTrace func(context.Context) error
}

// NewRootCommand 创建 authzctl 根命令
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "authzctl",
		Short: "authzctl - authorization service client",
		Long: `authzctl talks to an authorization service over gRPC or REST through
the same resilient pipeline applications use: retries, circuit breaking,
transport fallback, decision cache, rate limiting and audit.

Examples:
  # Check a permission
  authzctl check user:alice view doc:1

  # Write relationships
  authzctl write 'doc:1#viewer@user:alice' 'doc:1#viewer@group:eng#member'

  # List relationships as JSON
  authzctl list relationships --resource-type doc -o json

  # Start an in-memory server for local development
  authzctl serve --grpc-addr :50051 --rest-addr :8080
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.stopTrace == nil {
				return nil
			}
			return a.stopTrace(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configFile, "config", "c", "", "Config file (default: ./authz.yaml or ./config/authz.yaml)")
	pf.StringVarP(&a.flags.output, "output", "o", "table", "Output format (table, json, yaml)")
	pf.StringVar(&a.flags.grpcAddr, "grpc", "", "gRPC address of the authorization service")
	pf.StringVar(&a.flags.restURL, "rest", "", "REST base URL of the authorization service")
	pf.StringVar(&a.flags.strategy, "strategy", "", "Transport strategy (prefer_grpc, grpc_only, rest_only)")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "Per-call timeout covering retries and fallback")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		a.checkCommand(),
		a.writeCommand(),
		a.deleteCommand(),
		a.listCommand(),
		a.healthCommand(),
		a.statsCommand(),
		a.serveCommand(),
		versionCommand(),
	)
	return root
}

// Execute 运行根命令
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) loadConfig(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, err := client.LoadConfig(ctx, &config.Config{File: a.flags.configFile})
	if err != nil {
		return err
	}

	f := a.flags
	if f.grpcAddr != "" {
		cfg.GRPC.Address = f.grpcAddr
	}
	if f.restURL != "" {
		cfg.REST.BaseURL = f.restURL
	}
	if f.strategy != "" {
		cfg.Dispatch.Strategy = f.strategy
	}
	if f.timeout > 0 {
		cfg.Dispatch.Timeout = f.timeout
	}
	if f.verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Format = "console"
	} else {
		cfg.Log.Level = "error"
	}
	// 不导出时仍生成 TraceID，便于把日志与服务端请求对应起来
	if !cfg.Trace.Export {
		if a.stopTrace, err = trace.Discard("authzctl", cfg.Trace.Formats...); err != nil {
			return err
		}
	}
	a.cfg = cfg
	return nil
}

// newClient 按当前配置创建客户端，日志写到命令的错误输出
func (a *app) newClient(cmd *cobra.Command) (*client.Client, error) {
	logger, err := a.logger(cmd)
	if err != nil {
		return nil, err
	}
	return client.New(a.cfg, client.WithLogger(logger))
}

func (a *app) logger(cmd *cobra.Command) (clog.Logger, error) {
	return clog.New(&a.cfg.Log, clog.WithWriter(cmd.ErrOrStderr()), clog.WithTraceContext())
}

func (a *app) writer(cmd *cobra.Command) *Writer {
	return NewWriter(a.flags.output, cmd.OutOrStdout())
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("authzctl version 0.1.0")
		},
	}
}
