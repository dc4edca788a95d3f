package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/achyuki/cfproxy/internal/config"
	"github.com/achyuki/cfproxy/internal/dialer"
	"github.com/achyuki/cfproxy/internal/logging"
	"github.com/achyuki/cfproxy/internal/proxy"
	"github.com/achyuki/cfproxy/internal/socks5"
	"github.com/achyuki/cfproxy/internal/tproxy"
	"github.com/achyuki/cfproxy/internal/tunnel"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log, cfg.LogLevel)
	if err != nil {
		return err
	}

	edgeDialer, err := dialer.New(dialer.Config{
		DialTimeout:        cfg.DialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          cfg.KeepAlive,
	}, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	connector, err := tunnel.NewConnector(tunnel.Config{
		EdgeHost:         cfg.CFHost,
		EdgeIP:           cfg.CFIP,
		EdgePort:         cfg.CFPort,
		Token:            cfg.Token,
		HandshakeTimeout: cfg.NegotiationTimeout,
		Dialer:           edgeDialer,
	})
	if err != nil {
		return err
	}

	pcfg := proxy.Config{
		Auth: socks5.Auth{
			Username: cfg.User,
			Password: cfg.Passwd,
			Required: cfg.RequireAuth,
		},
		ReplyAfterConnect:  cfg.ReplyAfterConnect,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          cfg.KeepAlive,
		Connector:          connector,
		Logger:             log,
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DebugListen != "" {
		http.Handle("/metrics", promhttp.Handler())
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
		debugLn, err := lc.Listen(ctx, "tcp", cfg.DebugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Infof("debug listening on %s", cfg.DebugListen)
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.ListenAddr(), cfg.KeepAlive)
	if err != nil {
		return fmt.Errorf("socks5 listen: %w", err)
	}
	s5 := proxy.NewSOCKS5Server(ctx, pcfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := s5.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})

	if cfg.TProxyListen != "" {
		tln, err := tproxy.ListenTransparentTCP(ctx, cfg.TProxyListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, pcfg)
		context.AfterFunc(ctx, func() {
			_ = tln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(tln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		log.Infof("tproxy listening on %s", cfg.TProxyListen)
	}

	log.WithField("edge", connector.Addr()).Infof("socks5 proxy listening on %s, tunneling via %s", ln.Addr(), cfg.CFHost)
	if cfg.User != "" || cfg.Passwd != "" {
		log.Info("username/password authentication enabled")
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Info("shutting down")
	return err
}
