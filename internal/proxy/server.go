package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/achyuki/cfproxy/internal/socks5"
)

// Connection stages, used in logs and the failures metric.
const (
	stageHandshake = "handshake"
	stageRequest   = "request"
	stageReply     = "reply"
	stageTunnel    = "tunnel"
	stageRelay     = "relay"
)

// SOCKS5Server accepts SOCKS5 clients and tunnels each CONNECT through the
// edge.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
	log logrus.FieldLogger
	wg  sync.WaitGroup
}

// NewSOCKS5Server returns a server. Cancelling ctx closes every connection
// the server is handling.
func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SOCKS5Server{ctx: ctx, cfg: cfg, log: log}
}

// Serve accepts connections on ln until it is closed, handling each in its own
// goroutine. It returns once every handler has finished; the error is nil if
// the server context was cancelled.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
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
			// EMFILE, ECONNABORTED and the like are transient.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.WithError(err).Warnf("accept error, retrying in %v", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(c)
		}()
	}
}

func (s *SOCKS5Server) serveConn(conn net.Conn) {
	connectionsTotal.Inc()
	activeConnections.Inc()
	defer activeConnections.Dec()

	log := s.log.WithFields(logrus.Fields{
		"peer": conn.RemoteAddr().String(),
		"conn": uuid.NewString(),
	})

	log, err := s.handle(conn, log)
	if err == nil {
		return
	}

	var se *stageError
	stage := stageRelay
	if errors.As(err, &se) {
		stage = se.stage
	}
	failuresTotal.WithLabelValues(stage).Inc()

	entry := log.WithError(err).WithField("stage", stage)
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		entry.Debug("connection ended")
		return
	}
	entry.Warn("connection failed")
}

// handle serves one client. The returned logger carries the fields learned
// along the way, such as the target.
func (s *SOCKS5Server) handle(conn net.Conn, log logrus.FieldLogger) (logrus.FieldLogger, error) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	log.Debug("socks5 handshake")
	if err := socks5.ServerNegotiate(conn, s.cfg.Auth); err != nil {
		return log, &stageError{stage: stageHandshake, err: err}
	}

	target, err := socks5.ServerReadRequest(conn)
	if err != nil {
		return log, &stageError{stage: stageRequest, err: err}
	}
	log = log.WithField("target", target.String())

	if !s.cfg.ReplyAfterConnect {
		if err := socks5.WriteSuccessReply(conn); err != nil {
			return log, &stageError{stage: stageReply, err: err}
		}
	}

	tctx := ctx
	if s.cfg.NegotiationTimeout > 0 {
		var tcancel context.CancelFunc
		tctx, tcancel = context.WithTimeout(ctx, s.cfg.NegotiationTimeout)
		defer tcancel()
	}

	log.Debug("connecting tunnel")
	start := time.Now()
	sess, err := s.cfg.Connector.Connect(tctx, target)
	if err != nil {
		if s.cfg.ReplyAfterConnect {
			socks5.WriteConnectionRefusedReply(conn)
		}
		return log, &stageError{stage: stageTunnel, err: err}
	}
	defer sess.Close()
	tunnelSetupSeconds.Observe(time.Since(start).Seconds())

	if s.cfg.ReplyAfterConnect {
		if err := socks5.WriteSuccessReply(conn); err != nil {
			return log, &stageError{stage: stageReply, err: err}
		}
	}

	_ = conn.SetDeadline(time.Time{})

	log.Info("connected")
	sent, received, err := Relay(ctx, conn, sess)
	log.WithFields(logrus.Fields{"sent": sent, "received": received}).Info("connection closed")
	if err != nil {
		return log, &stageError{stage: stageRelay, err: err}
	}
	return log, nil
}

type stageError struct {
	stage string
	err   error
}

// Error omits the stage, which is logged as its own field.
func (e *stageError) Error() string {
	return e.err.Error()
}

func (e *stageError) Unwrap() error {
	return e.err
}
