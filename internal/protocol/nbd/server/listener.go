package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/exports"
)

// ListenSpec describes one address this server accepts connections on
// (spec §4.1: TCP, Unix socket, or an inherited socket-activation fd).
type ListenSpec struct {
	Network string // "tcp", "unix"
	Address string

	// SystemdSocketActivation, when set, ignores Network/Address and
	// instead adopts file descriptor 3 (LISTEN_FDS_START) the way a
	// systemd-activated nbdkit process does.
	SystemdSocketActivation bool

	HandshakeMode nbd.HandshakeMode
	Workers       int
	TLS           *nbd.TLSConfig
}

// Listener accepts connections for one ListenSpec and hands each to the
// worker pool via ServeConnection.
type Listener struct {
	spec    ListenSpec
	ln      net.Listener
	exports *exports.List
	barrier *UnloadBarrier
}

func NewListener(spec ListenSpec, exportList *exports.List, barrier *UnloadBarrier) (*Listener, error) {
	var ln net.Listener
	var err error

	switch {
	case spec.SystemdSocketActivation:
		ln, err = socketActivationListener()
	case spec.Network == "unix":
		if err := os.RemoveAll(spec.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("nbd: removing stale unix socket: %w", err)
		}
		ln, err = net.Listen("unix", spec.Address)
	default:
		ln, err = net.Listen("tcp", spec.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("nbd: listening on %s %s: %w", spec.Network, spec.Address, err)
	}

	return &Listener{spec: spec, ln: ln, exports: exportList, barrier: barrier}, nil
}

// socketActivationListener adopts fd 3, the systemd LISTEN_FDS_START
// convention nbdkit also follows for socket-activated startup.
func socketActivationListener() (net.Listener, error) {
	const listenFDsStart = 3
	f := os.NewFile(listenFDsStart, "nbd-socket-activation")
	if f == nil {
		return nil, fmt.Errorf("nbd: no inherited socket-activation file descriptor")
	}
	return net.FileListener(f)
}

// Serve accepts connections until ctx is canceled.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("nbd: accept: %w", err)
			}
		}

		l.barrier.RLock()
		go func() {
			defer l.barrier.RUnlock()
			l.handle(ctx, conn)
		}()
	}
}

func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	c := NewConnection(conn, l.exports, l.spec.TLS)
	logger.InfoCtx(ctx, "accepted connection", logger.ConnID(c.ID), logger.ClientIP(remoteIP(conn)))
	ServeConnection(ctx, c, l.spec.HandshakeMode, l.spec.Workers)
	logger.InfoCtx(ctx, "connection closed", logger.ConnID(c.ID))
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// parsePort converts a TCP port string to an int with strconv.Atoi. No
// code in this repository calls it; NewListener passes the address to
// net.Listen unparsed.
func parsePort(s string) (int, error) {
	return strconv.Atoi(s)
}
