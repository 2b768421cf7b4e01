package nbd

import (
	"errors"
	"testing"
)

func TestErrnoOf_Nil(t *testing.T) {
	if got := ErrnoOf(nil, 0); got != ESuccess {
		t.Errorf("ErrnoOf(nil) = %d, want ESuccess", got)
	}
}

func TestErrnoOf_UnrecognizedErrorDefaultsToEIO(t *testing.T) {
	if got := ErrnoOf(errors.New("boom"), 0); got != EIO {
		t.Errorf("ErrnoOf(plain error) = %d, want EIO", got)
	}
}

func TestErrnoOf_StaticCodes(t *testing.T) {
	cases := []struct {
		code Code
		want uint32
	}{
		{CodePermission, EPerm},
		{CodeIO, EIO},
		{CodeNoMemory, ENoMem},
		{CodeInvalidArgument, EInval},
		{CodeNoSpace, ENoSpc},
		{CodeShuttingDown, EShutdown},
	}
	for _, tc := range cases {
		err := NewBackendError("test", tc.code, nil)
		if got := ErrnoOf(err, 0); got != tc.want {
			t.Errorf("ErrnoOf(%v) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestErrnoOf_NotSupportedGatedOnFastZero(t *testing.T) {
	err := NewBackendError("test", CodeNotSupported, nil)
	if got := ErrnoOf(err, 0); got != EInval {
		t.Errorf("ErrnoOf(NotSupported, no flags) = %d, want EInval", got)
	}
	if got := ErrnoOf(err, CmdFlagFastZero); got != ENotSup {
		t.Errorf("ErrnoOf(NotSupported, FastZero) = %d, want ENotSup", got)
	}
}

func TestErrnoOf_OverflowGatedOnDF(t *testing.T) {
	err := NewBackendError("test", CodeOverflow, nil)
	if got := ErrnoOf(err, 0); got != EInval {
		t.Errorf("ErrnoOf(Overflow, no flags) = %d, want EInval", got)
	}
	if got := ErrnoOf(err, CmdFlagDF); got != EOverflow {
		t.Errorf("ErrnoOf(Overflow, DF) = %d, want EOverflow", got)
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	inner := errors.New("disk on fire")
	err := NewBackendError("pwrite", CodeIO, inner)
	if !errors.Is(err, inner) {
		t.Error("errors.Is should see through BackendError to the wrapped error")
	}
}
