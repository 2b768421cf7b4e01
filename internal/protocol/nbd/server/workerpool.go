package server

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/marmos91/nbdgo/internal/logger"
	"github.com/marmos91/nbdgo/internal/protocol/nbd"
	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// DefaultWorkers is the number of goroutines serving requests for a
// single connection whose resolved thread model is Parallel (spec §5).
const DefaultWorkers = 16

// ServeConnection drives one connection through handshake and then the
// request-serving phase, resolving the worker count from the backend
// chain's thread model. Connections whose thread model is below Parallel
// run on a single goroutine (the request lock serializes them anyway;
// running more would only add scheduling overhead).
func ServeConnection(ctx context.Context, c *Connection, mode nbd.HandshakeMode, workers int) {
	defer func() {
		closeCtx := context.Background()
		if err := c.Close(closeCtx); err != nil {
			logger.ErrorCtx(closeCtx, "error during connection teardown", logger.ConnID(c.ID), logger.Err(err))
		}
	}()

	s := c.Session()
	var err error
	switch mode {
	case nbd.HandshakeOldstyle:
		err = nbd.RunOldstyleHandshake(ctx, s)
	default:
		err = nbd.RunNewstyleHandshake(ctx, s)
	}
	if err != nil {
		logger.ErrorCtx(ctx, "handshake failed", logger.ConnID(c.ID), logger.Err(err))
		return
	}

	resolved := s.Export().Chain.ResolvedThreadModel()
	n := workers
	if n <= 0 {
		n = DefaultWorkers
	}
	if resolved < backend.Parallel { // below Parallel: a single serving goroutine suffices
		n = 1
	}

	logger.InfoCtx(ctx, "connection entering transmission phase",
		logger.ConnID(c.ID), logger.Export(s.Export().Name), logger.Operation(resolved.String()))

	// SerializeConnections admits only one such connection across the
	// whole process into the request-serving phase at a time (spec §5).
	c.LockGlobalConnection()
	defer c.UnlockGlobalConnection()

	runWorkers(ctx, c, n, resolved)
}

// runWorkers starts n goroutines serving the connection and waits for
// all of them to exit. The first worker to see a disconnect or I/O
// error marks the connection ClientDone and closes the socket's read
// side, which wakes the remaining workers blocked on their next read.
func runWorkers(ctx context.Context, c *Connection, n int, resolved backend.ThreadModel) {
	var wg sync.WaitGroup
	var once sync.Once
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			serveLoop(ctx, c, resolved)
			c.SetStatus(StatusClientDone)
			// Closing the raw socket is what actually wakes any sibling
			// worker blocked in a syscall read on the same connection;
			// the self-pipe channel only helps a goroutine that is
			// between reads, not one already inside one.
			once.Do(func() { c.interruptReaders() })
		}()
	}
	wg.Wait()
}

// serveLoop reads and executes requests until the connection ends. The
// read lock guards exactly the bytes of one frame (header plus any write
// payload) so concurrent workers never interleave two clients' frames;
// the write lock guards exactly one reply's bytes for the same reason.
// Backend execution between the two holds neither lock by default, which
// is what lets a Parallel-model connection overlap I/O across workers;
// resolved below Parallel narrows that window with the request-execution
// locks a connection's thread model requires (spec §5): SerializeRequests
// serializes this connection's own requests, SerializeAllRequests
// additionally serializes against every other connection in the process.
func serveLoop(ctx context.Context, c *Connection, resolved backend.ThreadModel) {
	s := c.Session()
	for {
		if c.Status() != StatusActive {
			return
		}

		c.LockRead()
		in, err := nbd.ReadRequestFrame(s)
		c.UnlockRead()

		if errors.Is(err, nbd.ErrDisconnect) {
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			logger.ErrorCtx(ctx, "failed to read request frame", logger.ConnID(c.ID), logger.Err(err))
			return
		}

		if resolved <= backend.SerializeAllRequests {
			c.LockGlobalRequest()
		}
		if resolved <= backend.SerializeRequests {
			c.LockRequest()
		}
		reply, err := nbd.ExecuteRequest(ctx, s, in)
		if resolved <= backend.SerializeRequests {
			c.UnlockRequest()
		}
		if resolved <= backend.SerializeAllRequests {
			c.UnlockGlobalRequest()
		}
		if err != nil {
			logger.ErrorCtx(ctx, "failed to execute request", logger.ConnID(c.ID), logger.Err(err))
			return
		}

		c.LockWrite()
		err = s.Writer().WriteBytes(reply)
		c.UnlockWrite()
		if err != nil {
			logger.ErrorCtx(ctx, "failed to write reply", logger.ConnID(c.ID), logger.Err(err))
			return
		}
	}
}
