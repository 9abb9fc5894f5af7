package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgnsrekt/tabaudio/internal/browser"
	"github.com/dgnsrekt/tabaudio/internal/cdpcontrol"
	"github.com/dgnsrekt/tabaudio/internal/config"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
	"github.com/dgnsrekt/tabaudio/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	// Global flags; zero values leave the environment configuration alone.
	flagCDPAddress    string
	flagCDPPort       int
	flagLogLevel      string
	flagTabRules      string
	flagOTLPEndpoint  string
	flagLaunchBrowser bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tabaudio",
	Short: "List and control the browser tabs that are playing audio",
	Long: `tabaudio attaches to a Chromium DevTools endpoint, finds the tabs that are
currently producing sound and lets you pause, resume, seek and change the
volume of their media elements.

Configuration comes from the environment (and an optional .env file); the
flags below override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&flagCDPAddress, "cdp-address", "", "Chromium DevTools address (overrides CHROMIUM_CDP_ADDRESS)")
	rootCmd.PersistentFlags().IntVar(&flagCDPPort, "cdp-port", 0, "Chromium DevTools port (overrides CHROMIUM_CDP_PORT)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagTabRules, "tab-rules", "", "YAML file with include/exclude URL rules")
	rootCmd.PersistentFlags().StringVar(&flagOTLPEndpoint, "otlp-endpoint", "", "OTLP HTTP endpoint, e.g. http://localhost:4318")
	rootCmd.PersistentFlags().BoolVar(&flagLaunchBrowser, "launch-browser", false, "start Chromium if nothing listens on the CDP port")
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("cdp-address") {
		c.CDPAddress = flagCDPAddress
	}
	if flags.Changed("cdp-port") {
		c.CDPPort = flagCDPPort
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("tab-rules") {
		c.TabRulesPath = flagTabRules
	}
	if flags.Changed("otlp-endpoint") {
		c.OTLPEndpoint = flagOTLPEndpoint
	}
	if flags.Changed("launch-browser") {
		c.LaunchBrowser = flagLaunchBrowser
	}
	if flags.Changed("bind") {
		c.BindAddr = flagBind
	}
}

// stack is the wired directory, executor and reconciler shared by the
// long-running subcommands.
type stack struct {
	launcher   *browser.Launcher
	client     *cdpcontrol.Client
	telemetry  *telemetry.Telemetry
	directory  reconciler.TabDirectory
	reconciler *reconciler.Reconciler
}

func startStack(ctx context.Context, console io.Writer) (*stack, error) {
	if err := setupLogger(cfg.LogLevel, cfg.LogFile, console); err != nil {
		fmt.Fprintln(os.Stderr, "logger setup failed:", err)
		return nil, err
	}
	slog.Info("tabaudio config loaded",
		"cdp_url", cfg.CDPURL(),
		"bind_addr", cfg.BindAddr,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"state_concurrency", cfg.StateConcurrency,
		"tab_rules", cfg.TabRulesPath,
		"otlp_endpoint", cfg.OTLPEndpoint,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	s := &stack{}
	if cfg.LaunchBrowser {
		s.launcher = browser.NewLauncher(browser.Config{
			CDPAddress:  cfg.CDPAddress,
			CDPPort:     cfg.CDPPort,
			BrowserPath: cfg.BrowserPath,
			ProfileDir:  cfg.ProfileDir,
		})
		if err := s.launcher.Launch(ctx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	}

	var rules *config.TabRules
	if cfg.TabRulesPath != "" {
		var err error
		if rules, err = config.LoadTabRules(cfg.TabRulesPath); err != nil {
			s.close()
			return nil, err
		}
	}

	telemetry.Version = version
	tel, err := telemetry.Init(ctx, cfg.OTLPEndpoint)
	if err != nil {
		s.close()
		return nil, err
	}
	s.telemetry = tel

	s.client = cdpcontrol.NewClient(cfg.CDPURL(), rules, cfg.EvalTimeout())
	s.client.SetObserver(tel.Metrics)
	s.client.SetProbeConcurrency(cfg.StateConcurrency)
	if err := s.client.Connect(ctx); err != nil {
		// Not fatal: the client reconnects on the next directory query.
		slog.Warn("initial CDP connect failed", "cdp_url", cfg.CDPURL(), "error", err)
	}

	s.directory = &telemetry.Directory{Next: s.client, Tracer: tel.Tracer, Metrics: tel.Metrics}
	exec := &telemetry.Executor{Next: s.client, Tracer: tel.Tracer}
	s.reconciler = reconciler.New(s.directory, exec, cfg.StateConcurrency)
	return s, nil
}

func (s *stack) close() {
	if s.reconciler != nil {
		s.reconciler.Close()
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.telemetry.Shutdown(ctx)
	}
	if s.launcher != nil {
		s.launcher.Stop()
	}
}
