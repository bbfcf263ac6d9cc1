package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivnisc/csat"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a server until interrupted",
	}

	for _, sub := range []struct {
		use, short string
		tcp, udp   bool
	}{
		{"tcp", "Serve framed requests over TCP", true, false},
		{"udp", "Serve datagram requests over UDP", false, true},
		{"all", "Serve TCP and UDP side by side", true, true},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), v, sub.tcp, sub.udp)
			},
		})
	}

	return cmd
}

// servable is a started server waiting to be run.
type servable struct {
	serve func(context.Context) error
	close func() error
	// drain waits for work still running after serve returned.
	drain func()
}

func runServe(ctx context.Context, v *viper.Viper, tcp, udp bool) error {
	cfg, zl, err := setup(v)
	if err != nil {
		return err
	}
	defer zl.Sync()
	logger := zapLogger{zl.Sugar()}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := cfg.dispatcher(logger)
	logger.Info("starting", "mode", cfg.Mode, "tcp", tcp, "udp", udp)

	// Connections stop only after the listeners are down, and each one
	// answers the request it is handling before closing.
	connCtx, stopConns := context.WithCancel(context.WithoutCancel(ctx))
	defer stopConns()

	var servers []servable
	closeAll := func() {
		for _, s := range servers {
			_ = s.close()
		}
	}

	if tcp {
		s, err := startTCP(connCtx, cfg, d, logger)
		if err != nil {
			logger.Error("tcp server not started", "error", err)
			return err
		}
		servers = append(servers, s)
	}
	if udp {
		s, err := startUDP(cfg, d, logger)
		if err != nil {
			logger.Error("udp server not started", "error", err)
			closeAll()
			return err
		}
		servers = append(servers, s)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range servers {
		s := s
		g.Go(func() error { return s.serve(gctx) })
	}

	err = g.Wait()
	closeAll()
	stopConns()
	for _, s := range servers {
		if s.drain != nil {
			s.drain()
		}
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("shut down")
		return nil
	}
	return err
}

func startTCP(connCtx context.Context, cfg Config, d csat.Dispatcher, logger csat.Logger) (servable, error) {
	addr, err := net.ResolveTCPAddr("tcp", cfg.tcpAddr())
	if err != nil {
		return servable{}, errors.Wrapf(err, "resolve %s", cfg.tcpAddr())
	}
	srv, err := csat.New(addr, csat.ServerLoggerOption(logger))
	if err != nil {
		return servable{}, err
	}

	handler := csat.NewConnHandler(connCtx, d,
		csat.LoggerOption(logger),
		csat.MessageMaxSize(cfg.MaxFrame),
	)
	return servable{
		serve: func(ctx context.Context) error { return srv.Serve(ctx, handler) },
		close: srv.Close,
		drain: srv.Wait,
	}, nil
}

func startUDP(cfg Config, d csat.Dispatcher, logger csat.Logger) (servable, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.udpAddr())
	if err != nil {
		return servable{}, errors.Wrapf(err, "resolve %s", cfg.udpAddr())
	}
	srv, err := csat.ListenUDP(addr, d,
		csat.ServerLoggerOption(logger),
		csat.MaxDatagramOption(cfg.MaxDatagram),
	)
	if err != nil {
		return servable{}, err
	}
	return servable{serve: srv.Serve, close: srv.Close}, nil
}
