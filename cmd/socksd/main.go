// Command socksd runs the dual-protocol SOCKS4/4a/5 proxy server.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"socksd/internal/config"
	"socksd/internal/coordinator"
	"socksd/internal/handler"
	"socksd/internal/metrics"
	"socksd/internal/server"
)

type flags struct {
	ip          string
	port        int
	socks4      bool
	socks5      bool
	auth        bool
	users       []string
	usersFile   string
	metricsAddr string
	testConfig  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "socksd",
		Short: "Dual-protocol SOCKS4/SOCKS4a/SOCKS5 proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	cmd.Flags().StringVar(&f.ip, "ip", "0.0.0.0", "address to bind the SOCKS listener on")
	cmd.Flags().IntVar(&f.port, "port", 1080, "port to bind the SOCKS listener on")
	cmd.Flags().BoolVar(&f.socks4, "socks4", true, "enable the SOCKS4/SOCKS4a state machine")
	cmd.Flags().BoolVar(&f.socks5, "socks5", true, "enable the SOCKS5 state machine")
	cmd.Flags().BoolVar(&f.auth, "auth", false, "require SOCKS5 username/password auth (implies --socks5 and --users)")
	cmd.Flags().StringSliceVar(&f.users, "users", nil, "user:pass pair, repeatable")
	cmd.Flags().StringVar(&f.usersFile, "users-file", "", "YAML file of additional user:pass pairs")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "127.0.0.1:9090", "address to serve /metrics on, empty to disable")
	cmd.Flags().BoolVarP(&f.testConfig, "test-config", "t", false, "validate configuration and exit")

	return cmd
}

func run(f *flags) error {
	cfg, err := config.Build(f.ip, f.port, f.socks4, f.socks5, f.auth, f.users, f.usersFile, f.metricsAddr)
	if err != nil {
		return err
	}

	if f.testConfig {
		fmt.Printf("configuration OK: listen %s:%d socks4=%v socks5=%v auth=%v users=%d\n",
			cfg.BindIP, cfg.BindPort, cfg.EnableV4, cfg.EnableV5, cfg.RequireAuth, len(cfg.Users))
		return nil
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting socksd",
		zap.String("bind_ip", cfg.BindIP.String()),
		zap.Int("bind_port", cfg.BindPort),
		zap.Bool("socks4", cfg.EnableV4),
		zap.Bool("socks5", cfg.EnableV5),
		zap.Bool("require_auth", cfg.RequireAuth),
		zap.Int("users", len(cfg.Users)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := coordinator.NewBus()
	m := metrics.New()

	coord := coordinator.New(bus, coordinator.Policy{
		RequireAuth: cfg.RequireAuth,
		Users:       cfg.Users,
	}, log, m.SessionCountHook())
	go coord.Run(ctx)

	srv := &server.Server{
		Addr: net.JoinHostPort(cfg.BindIP.String(), fmt.Sprint(cfg.BindPort)),
		Deps: handler.Deps{
			Bus:      bus,
			EnableV4: cfg.EnableV4,
			EnableV5: cfg.EnableV5,
			Metrics:  m,
			Log:      log,
		},
		Log: log,
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Run(ctx) }()
	if cfg.MetricsAddr != "" {
		go func() { errCh <- m.Serve(ctx, cfg.MetricsAddr, log) }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			log.Error("fatal", zap.Error(err))
			cancel()
			return err
		}
	}

	return nil
}
