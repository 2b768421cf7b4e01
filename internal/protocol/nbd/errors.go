package nbd

import (
	"errors"
	"fmt"
)

// Code is an explicit backend error classification, carried instead of a
// leaked OS errno (spec §7's "errno-leakage" design note). Plugins and
// filters return a *BackendError with one of these codes; the dispatcher
// maps it onto the wire's NBD_E* value without ever inspecting syscall
// errno numbers.
type Code int

const (
	CodeUnknown Code = iota
	CodePermission
	CodeIO
	CodeNoMemory
	CodeInvalidArgument
	CodeNoSpace
	CodeOverflow
	CodeShuttingDown
	CodeNotSupported
)

// BackendError is the error type plugins and filters return from their
// data-path methods (pread/pwrite/trim/zero/flush/extents).
type BackendError struct {
	Code Code
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nbd: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("nbd: %s: %s", e.Op, e.Code)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (c Code) String() string {
	switch c {
	case CodePermission:
		return "permission denied"
	case CodeIO:
		return "i/o error"
	case CodeNoMemory:
		return "out of memory"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeNoSpace:
		return "no space left"
	case CodeOverflow:
		return "overflow"
	case CodeShuttingDown:
		return "shutting down"
	case CodeNotSupported:
		return "not supported"
	default:
		return "unknown error"
	}
}

// WireErrno maps a Code onto the NBD_E* wire value carried in a simple or
// structured reply (spec §6/§7). reqFlags is the triggering request's
// NBD_CMD_FLAG_* bitmask: CodeNotSupported and CodeOverflow are each
// conditional on one specific flag having been set on that request —
// ENOTSUP is only reported back as ENOTSUP when FAST_ZERO was set
// (otherwise a client that never asked for the fast-or-fail contract
// gets plain EINVAL), and likewise EOVERFLOW only when DF was set.
func (c Code) WireErrno(reqFlags uint16) uint32 {
	switch c {
	case CodePermission:
		return EPerm
	case CodeIO:
		return EIO
	case CodeNoMemory:
		return ENoMem
	case CodeInvalidArgument:
		return EInval
	case CodeNoSpace:
		return ENoSpc
	case CodeOverflow:
		if reqFlags&CmdFlagDF != 0 {
			return EOverflow
		}
		return EInval
	case CodeShuttingDown:
		return EShutdown
	case CodeNotSupported:
		if reqFlags&CmdFlagFastZero != 0 {
			return ENotSup
		}
		return EInval
	default:
		return EIO
	}
}

// NewBackendError builds a BackendError, the only constructor plugins and
// filters should use to surface a data-path failure.
func NewBackendError(op string, code Code, err error) *BackendError {
	return &BackendError{Op: op, Code: code, Err: err}
}

// ErrnoOf extracts the wire errno for any error, defaulting unrecognized
// errors to EIO so a panic-free response is always possible. reqFlags is
// the request's NBD_CMD_FLAG_* bitmask, needed to resolve Code's two
// flag-conditional mappings (see WireErrno); pass 0 when no request is
// in scope (e.g. a handshake-time error).
func ErrnoOf(err error, reqFlags uint16) uint32 {
	if err == nil {
		return ESuccess
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code.WireErrno(reqFlags)
	}
	return EIO
}
