package tproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/achyuki/cfproxy/internal/proxy"
	"github.com/achyuki/cfproxy/internal/socks5"
)

// Server tunnels redirected connections to their original destination. Only
// Connector, NegotiationTimeout and Logger of the proxy.Config are used.
type Server struct {
	ctx context.Context
	cfg proxy.Config
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

func NewServer(ctx context.Context, cfg proxy.Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{ctx: ctx, cfg: cfg, log: log.WithField("listener", "tproxy")}
}

// Serve accepts connections until ln is closed and waits for the handlers to
// finish. It returns nil if the server context was cancelled.
func (s *Server) Serve(ln net.Listener) error {
	defer s.wg.Wait()

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.WithError(err).Warnf("accept error, retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			log := s.log.WithFields(logrus.Fields{
				"peer": c.RemoteAddr().String(),
				"conn": uuid.NewString(),
			})
			if log, err := s.handle(c, log); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
					log.WithError(err).Debug("connection ended")
					return
				}
				log.WithError(err).Warn("connection failed")
			}
		}()
	}
}

func (s *Server) handle(conn net.Conn, log logrus.FieldLogger) (logrus.FieldLogger, error) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	dst, err := OriginalDst(conn)
	if err != nil {
		return log, err
	}
	target := targetFor(dst)
	log = log.WithField("target", target.String())

	tctx := ctx
	if s.cfg.NegotiationTimeout > 0 {
		var tcancel context.CancelFunc
		tctx, tcancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer tcancel()
	}

	sess, err := s.cfg.Connector.Connect(tctx, target)
	if err != nil {
		return log.WithField("stage", "tunnel"), err
	}
	defer sess.Close()

	log.Info("connected")
	sent, received, err := proxy.Relay(ctx, conn, sess)
	log.WithFields(logrus.Fields{"sent": sent, "received": received}).Info("connection closed")
	if err != nil {
		return log.WithField("stage", "relay"), err
	}
	return log, nil
}

func targetFor(dst netip.AddrPort) socks5.Target {
	ip := dst.Addr().Unmap()
	if ip.Is4() {
		return socks5.IPv4Target(ip.As4(), dst.Port())
	}
	return socks5.IPv6Target(ip.As16(), dst.Port())
}
