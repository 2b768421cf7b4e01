package commands

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/server"
	"github.com/marmos91/nbdgo/internal/telemetry"
	"github.com/marmos91/nbdgo/pkg/config"
	"github.com/marmos91/nbdgo/pkg/metrics"
	"github.com/spf13/cobra"

	// Import prometheus metrics to register init() functions.
	_ "github.com/marmos91/nbdgo/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nbdgo server",
	Long: `Start the nbdgo server with the specified configuration.

By default, the server runs in the background (daemon mode). Use
--foreground to run in the foreground for debugging or when managed by
a process supervisor.

Examples:
  # Start in background (default)
  nbdgo start

  # Start in foreground
  nbdgo start --foreground

  # Start with custom config file
  nbdgo start --config /etc/nbdgo/config.yaml

  # Start with environment variable overrides
  NBDGO_LOGGING_LEVEL=DEBUG nbdgo start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/nbdgo/nbdgo.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/nbdgo/nbdgo.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "nbdgo",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nbdgo",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("nbdgo starting")
	logger.Info("log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("telemetry disabled")
	}

	// Metrics must be initialized before building exports so plugins and
	// filters pick up a non-nil registry from metrics.IsEnabled().
	metricsServer := metrics.InitializeMetrics(cfg.Metrics.Enabled, cfg.Metrics.Port)
	metricsErrCh := make(chan error, 1)
	if metricsServer != nil {
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
		metricsServer.Start(metricsErrCh)
	} else {
		logger.Info("metrics collection disabled")
	}

	exportList, err := config.BuildExports(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build exports: %w", err)
	}
	logger.Info("exports built", "count", exportList.Len())

	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}

	handshakeMode := nbd.HandshakeNewstyle
	if cfg.Listen.HandshakeMode == "oldstyle" {
		handshakeMode = nbd.HandshakeOldstyle
	}

	listenSpec := server.ListenSpec{
		Network:                 cfg.Listen.Network,
		Address:                 cfg.Listen.Address,
		SystemdSocketActivation: cfg.Listen.SocketActivation,
		HandshakeMode:           handshakeMode,
		Workers:                 cfg.Listen.Workers,
		TLS:                     tlsCfg,
	}

	barrier := server.NewUnloadBarrier()
	listener, err := server.NewListener(listenSpec, exportList, barrier)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	logger.Info("listening", "address", listener.Addr().String())

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- listener.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("server is running, press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", "error", err)
			return err
		}
		logger.Info("server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
		logger.Info("server stopped")

	case err := <-metricsErrCh:
		signal.Stop(sigChan)
		logger.Error("metrics server error", "error", err)
		cancel()
		<-serverDone
		return err
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	return nil
}

// buildTLSConfig constructs the NBD_OPT_STARTTLS upgrade target from
// configuration, returning nil when TLS is disabled so the handshake
// simply never advertises NBD_OPT_STARTTLS.
func buildTLSConfig(cfg config.TLSConfig) (*nbd.TLSConfig, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if cfg.ClientCAFile != "" {
		caPEM, err := os.ReadFile(cfg.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading client CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certificates found in %s", cfg.ClientCAFile)
		}
		tlsConf.ClientCAs = pool
		tlsConf.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return &nbd.TLSConfig{Config: tlsConf, Required: cfg.Required}, nil
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	nbdgoStateDir := filepath.Join(stateDir, "nbdgo")

	if err := os.MkdirAll(nbdgoStateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(nbdgoStateDir, "nbdgo.pid")
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("nbdgo is already running (PID %d)\nUse 'kill %d' to stop it", pid, pid)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(nbdgoStateDir, "nbdgo.log")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	_ = logFileHandle.Close()

	fmt.Printf("nbdgo started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'kill <pid>' to stop the server")
	fmt.Println("Use 'nbdgo status' to check server status")

	return nil
}
