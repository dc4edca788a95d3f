package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Tunnel is the edge side of a relay. *tunnel.Session implements it.
type Tunnel interface {
	WriteBinary(p []byte) error
	// NextBinary returns the next payload, or io.EOF once the edge closed.
	NextBinary() (io.Reader, error)
	Close() error
}

// Relay copies bytes between client and tun until both directions finish,
// and returns the byte counts for each direction.
//
// End of stream from the client stops the client-to-tunnel pump only; data
// from the tunnel keeps flowing to the client. A close from the tunnel ends
// the session. The first error closes both sides so the other pump returns,
// and is the error reported. Cancelling ctx closes both sides.
func Relay(ctx context.Context, client io.ReadWriteCloser, tun Tunnel) (sent, received int64, err error) {
	var closing atomic.Bool
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			closing.Store(true)
			_ = client.Close()
			_ = tun.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group

	g.Go(func() error {
		err := pumpToTunnel(tun, client, &sent)
		if err != nil && !closing.Load() {
			closeBoth()
			return fmt.Errorf("client to tunnel: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := pumpToClient(client, tun, &received)
		if err != nil && !closing.Load() {
			closeBoth()
			return fmt.Errorf("tunnel to client: %w", err)
		}
		closeBoth()
		return nil
	})

	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return sent, received, err
}

func pumpToTunnel(tun Tunnel, client io.Reader, n *int64) error {
	buf := getBuffer()
	defer putBuffer(buf)

	for {
		nr, err := client.Read(buf[:])
		if nr > 0 {
			if werr := tun.WriteBinary(buf[:nr]); werr != nil {
				return werr
			}
			*n += int64(nr)
			sentBytes.Add(float64(nr))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func pumpToClient(client io.Writer, tun Tunnel, n *int64) error {
	buf := getBuffer()
	defer putBuffer(buf)

	for {
		r, err := tun.NextBinary()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		nw, err := io.CopyBuffer(writerOnly{client}, r, buf[:])
		*n += nw
		receivedBytes.Add(float64(nw))
		if err != nil {
			return err
		}
	}
}

// writerOnly hides ReadFrom so io.CopyBuffer uses the pooled buffer.
type writerOnly struct {
	io.Writer
}
