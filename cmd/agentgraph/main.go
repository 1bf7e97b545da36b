// =============================================================================
// AgentGraph 命令行入口
// =============================================================================
// 用配置好的 Provider、工具与特性运行一次 Agent
//
// 使用方法:
//
//	agentgraph run "2 加 3 等于几？"                 # 使用默认配置运行
//	agentgraph run --config agentgraph.yaml "..."   # 指定配置文件
//	agentgraph run --stream "讲个笑话"               # 流式输出，不使用工具
//	agentgraph tools                                # 列出内置工具
//	agentgraph version                              # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentgraph/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdout, os.Stderr))
}

func dispatch(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "run":
		return runAgent(args[1:], stdout, stderr)
	case "tools":
		printTools(stdout)
		return 0
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🤖 run 命令
// =============================================================================

func runAgent(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	stream := fs.Bool("stream", false, "Stream the reply without tools")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprintln(stderr, "run: missing question")
		return 2
	}

	cfg, err := config.NewLoader().
		WithConfigPath(*configPath).
		WithDotEnv(".env").
		WithValidator((*config.Config).Validate).
		Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Agent.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Agent.Timeout)
		defer cancel()
	}

	a, err := newApp(ctx, cfg, logger, appDeps{})
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		return 1
	}
	defer a.Close(context.Background())

	logger.Debug("agentgraph starting",
		zap.String("version", Version),
		zap.String("model", a.model.String()),
		zap.Strings("tools", a.registry.Names()),
	)

	var answer string
	if *stream {
		answer, err = a.Stream(ctx, question, stdout)
		fmt.Fprintln(stdout)
	} else {
		answer, err = a.Ask(ctx, question)
		if err == nil {
			fmt.Fprintln(stdout, answer)
		}
	}
	if err != nil {
		logger.Error("agent run failed", zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printTools(w io.Writer) {
	for _, d := range calculatorRegistry().Descriptors() {
		fmt.Fprintf(w, "%-10s %s\n", d.Name, d.Description)
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "AgentGraph %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `AgentGraph - graph based AI agent runner

Usage:
  agentgraph <command> [options]

Commands:
  run       Ask the agent one question
  tools     List the built-in tools
  version   Show version information
  help      Show this help message

Options for 'run':
  --config <path>   Path to configuration file (YAML)
  --stream          Stream the answer token by token (tools disabled)

Environment:
  AGENTGRAPH_LLM_PROVIDER, AGENTGRAPH_LLM_API_KEY, AGENTGRAPH_AGENT_MODEL ...

Examples:
  agentgraph run "what is 12.5 times 4?"
  agentgraph run --config /etc/agentgraph/config.yaml "divide 10 by 4"
  agentgraph version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
