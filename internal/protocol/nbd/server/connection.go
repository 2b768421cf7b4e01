// Package server implements the per-connection lifecycle, worker pool,
// and listener plumbing around the protocol engine in internal/protocol/nbd
// (spec §5).
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/exports"
)

// globalConnectionGate and globalRequestGate are the process-wide locks
// spec §5's SerializeConnections/SerializeAllRequests thread models
// require, mirroring original_source/server/locks.c's connection_lock
// and all_requests_lock. Every connection consults them, but only a
// connection whose resolved thread model is at or below the
// corresponding tier actually blocks on them.
var (
	globalConnectionGate sync.Mutex
	globalRequestGate    sync.Mutex
)

// Status is a connection's lifecycle state, totally ordered by value as
// Active < ClientDone < Dead (spec §5). A connection can only move
// forward through this order.
type Status int

const (
	StatusActive Status = iota
	StatusClientDone
	StatusDead
)

// Connection holds one client's negotiated session plus the
// concurrency-control primitives spec §5 requires: separate request,
// read, write and status locks, and a self-pipe (here a buffered
// channel) that WaitForWakeup selects on, signalled when the status
// leaves Active. A goroutine already blocked inside a socket read is
// woken by interruptReaders, not by the self-pipe.
type Connection struct {
	ID   string
	conn net.Conn

	session *nbd.Session

	requestMu sync.Mutex // serializes request execution per thread model
	readMu    sync.Mutex // serializes socket reads
	writeMu   sync.Mutex // serializes socket writes
	statusMu  sync.Mutex

	status    Status
	wakeupCh  chan struct{} // the "self-pipe": closed readers select on it

	log *logger.LogContext
}

// NewConnection wraps an accepted net.Conn in a Connection, ready for
// handshake negotiation.
func NewConnection(conn net.Conn, exportList *exports.List, tlsCfg *nbd.TLSConfig) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:       id,
		conn:     conn,
		session:  nbd.NewSession(conn, exportList, tlsCfg),
		wakeupCh: make(chan struct{}, 1),
		log:      logger.NewLogContext(remoteIP(conn)).WithConnID(id),
	}
}

func remoteIP(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func (c *Connection) Session() *nbd.Session { return c.session }

// Status returns the connection's current lifecycle status.
func (c *Connection) Status() Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// SetStatus advances the connection's status; a status earlier in the
// order than the current one is ignored. Setting ClientDone or Dead
// wakes any goroutine blocked on WaitForWakeup, matching
// the self-pipe's purpose in original_source/server/locks.c.
func (c *Connection) SetStatus(s Status) {
	c.statusMu.Lock()
	if s > c.status {
		c.status = s
	}
	c.statusMu.Unlock()
	if s >= StatusClientDone {
		select {
		case c.wakeupCh <- struct{}{}:
		default:
		}
	}
}

// interruptReaders closes the raw connection's read side so any sibling
// worker currently blocked inside a socket read fails immediately
// instead of waiting for its own next frame that will never arrive.
func (c *Connection) interruptReaders() {
	if closer, ok := c.conn.(interface{ CloseRead() error }); ok {
		_ = closer.CloseRead()
		return
	}
	_ = c.conn.Close()
}

// WaitForWakeup blocks until either ctx is done or the self-pipe fires.
func (c *Connection) WaitForWakeup(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-c.wakeupCh:
	}
}

// ResolvedThreadModel returns the effective thread model for the
// connection's currently-open export chain, or Parallel (the least
// restrictive tier) if no export has been opened yet, since there is
// nothing to serialize against before that point.
func (c *Connection) ResolvedThreadModel() backend.ThreadModel {
	exp := c.session.Export()
	if exp == nil {
		return backend.Parallel
	}
	return exp.Chain.ResolvedThreadModel()
}

// LockRequest/UnlockRequest serialize request execution within a single
// connection for thread models at or below SerializeRequests (spec §5).
// Callers gate these on ResolvedThreadModel; the mutex itself is
// unconditional so Parallel connections never pay its cost.
func (c *Connection) LockRequest()   { c.requestMu.Lock() }
func (c *Connection) UnlockRequest() { c.requestMu.Unlock() }

// LockGlobalConnection/UnlockGlobalConnection enforce SerializeConnections:
// only one such connection may be actively serving requests across the
// whole process at a time.
func (c *Connection) LockGlobalConnection() {
	if c.ResolvedThreadModel() <= backend.SerializeConnections {
		globalConnectionGate.Lock()
	}
}
func (c *Connection) UnlockGlobalConnection() {
	if c.ResolvedThreadModel() <= backend.SerializeConnections {
		globalConnectionGate.Unlock()
	}
}

// LockGlobalRequest/UnlockGlobalRequest enforce SerializeAllRequests:
// only one request across every connection in the process may be
// in-flight at a time.
func (c *Connection) LockGlobalRequest() {
	if c.ResolvedThreadModel() <= backend.SerializeAllRequests {
		globalRequestGate.Lock()
	}
}
func (c *Connection) UnlockGlobalRequest() {
	if c.ResolvedThreadModel() <= backend.SerializeAllRequests {
		globalRequestGate.Unlock()
	}
}

// LockRead/UnlockRead serialize socket reads.
func (c *Connection) LockRead()   { c.readMu.Lock() }
func (c *Connection) UnlockRead() { c.readMu.Unlock() }

// LockWrite/UnlockWrite serialize socket writes, since structured
// replies may interleave multiple chunk writes that must not be split
// by a concurrent request's reply.
func (c *Connection) LockWrite()   { c.writeMu.Lock() }
func (c *Connection) UnlockWrite() { c.writeMu.Unlock() }

// Close closes the underlying export (via its chain's head) and the
// socket, marking the connection Dead.
func (c *Connection) Close(ctx context.Context) error {
	defer c.SetStatus(StatusDead)
	var closeErr error
	if exp := c.session.Export(); exp != nil {
		bctx := c.session.BackendContext()
		c.LockGlobalRequest()
		finalizeErr := exp.Chain.Head().Finalize(ctx, bctx)
		c.UnlockGlobalRequest()
		if finalizeErr != nil {
			logger.ErrorCtx(ctx, "error finalizing export backend",
				logger.Export(exp.Name), logger.ConnID(c.ID), logger.Err(finalizeErr))
		}
		if err := exp.Chain.Head().Close(ctx, bctx); err != nil {
			logger.ErrorCtx(ctx, "error closing export backend",
				logger.Export(exp.Name), logger.ConnID(c.ID), logger.Err(err))
		}
	}
	if err := c.session.Close(); err != nil {
		closeErr = fmt.Errorf("nbd: closing connection: %w", err)
	}
	return closeErr
}
