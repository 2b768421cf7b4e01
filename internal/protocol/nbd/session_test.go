package nbd

import (
	"testing"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/exports"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return NewSession(nil, exports.NewList(), nil)
}

func TestSession_FixedNewstyleDefaultsFalse(t *testing.T) {
	s := newTestSession(t)
	if s.FixedNewstyle() {
		t.Error("FixedNewstyle should default to false")
	}
	s.SetFixedNewstyle(true)
	if !s.FixedNewstyle() {
		t.Error("FixedNewstyle should report true after SetFixedNewstyle(true)")
	}
}

func TestSession_RegisterMetaContext(t *testing.T) {
	s := newTestSession(t)
	id := s.RegisterMetaContext("base:allocation")
	if id != MetaContextBaseAllocationID {
		t.Errorf("RegisterMetaContext(base:allocation) = %d, want %d", id, MetaContextBaseAllocationID)
	}
	if !s.HasMetaContext("base:allocation") {
		t.Error("HasMetaContext should be true after registration")
	}
	gotID, ok := s.MetaContextID("base:allocation")
	if !ok || gotID != id {
		t.Errorf("MetaContextID = %d, %v, want %d, true", gotID, ok, id)
	}
}

func TestSession_DiscardMetaContextsIfExportMismatch(t *testing.T) {
	s := newTestSession(t)
	s.RegisterMetaContext("base:allocation")
	s.RememberMetaContextExport("disk0")

	// Same export: contexts survive.
	s.DiscardMetaContextsIfExportMismatch("disk0")
	if !s.HasMetaContext("base:allocation") {
		t.Error("contexts should survive a matching export")
	}

	// Different export: contexts are dropped.
	s.DiscardMetaContextsIfExportMismatch("disk1")
	if s.HasMetaContext("base:allocation") {
		t.Error("contexts should be discarded on export mismatch")
	}
}

func TestSession_DiscardMetaContextsIfExportMismatch_NoopWithoutSetMetaContext(t *testing.T) {
	s := newTestSession(t)
	s.RegisterMetaContext("base:allocation")
	// RememberMetaContextExport was never called: nothing to compare
	// against, so the contexts must survive.
	s.DiscardMetaContextsIfExportMismatch("disk0")
	if !s.HasMetaContext("base:allocation") {
		t.Error("contexts should survive when SET_META_CONTEXT was never issued")
	}
}

func TestSession_StructuredReply(t *testing.T) {
	s := newTestSession(t)
	if s.StructuredReplyEnabled() {
		t.Error("structured replies should default to disabled")
	}
	s.EnableStructuredReply()
	if !s.StructuredReplyEnabled() {
		t.Error("structured replies should be enabled after EnableStructuredReply")
	}
}
