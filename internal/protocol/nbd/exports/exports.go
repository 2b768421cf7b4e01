// Package exports holds the server's bounded, ordered export list
// (spec §4.6): the set of names a client may request with
// NBD_OPT_EXPORT_NAME, NBD_OPT_INFO, NBD_OPT_GO, and NBD_OPT_LIST.
package exports

import (
	"fmt"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
)

// Limits enforced by Add; they equal nbd.ExportNameMaxLen and
// nbd.MaxExports, declared here because package nbd imports this one.
const (
	exportNameMaxLen = 4096
	maxExports       = 10000
)

// Export describes one named export: its backend chain and the metadata
// advertised during handshake.
type Export struct {
	Name        string
	Description string
	Chain       *backend.Chain
	ReadOnly    bool
}

// List is a bounded, ordered export table. Order matters: NBD_OPT_LIST
// replies enumerate exports in registration order (spec §4.6), and the
// first entry may additionally serve as the default export for oldstyle
// and empty-name newstyle negotiation (spec §C, oldstyle default export).
type List struct {
	order []string
	byName map[string]*Export
	useDefault bool
}

func NewList() *List {
	return &List{byName: make(map[string]*Export)}
}

// SetUseDefault controls whether an empty export name resolves to the
// first registered export (spec §4.6's use_default flag).
func (l *List) SetUseDefault(v bool) { l.useDefault = v }

func (l *List) UsesDefault() bool { return l.useDefault }

// Add registers an export, enforcing the name/description length caps
// and the total-entry cap from spec §4.6.
func (l *List) Add(e *Export) error {
	if len(e.Name) > exportNameMaxLen {
		return fmt.Errorf("nbd: export name exceeds %d bytes", exportNameMaxLen)
	}
	if len(e.Description) > exportNameMaxLen {
		return fmt.Errorf("nbd: export description exceeds %d bytes", exportNameMaxLen)
	}
	if _, exists := l.byName[e.Name]; exists {
		return fmt.Errorf("nbd: duplicate export name %q", e.Name)
	}
	if len(l.order) >= maxExports {
		return fmt.Errorf("nbd: exports list exceeds maximum of %d entries", maxExports)
	}
	l.order = append(l.order, e.Name)
	l.byName[e.Name] = e
	return nil
}

// Lookup resolves a client-requested export name, applying the
// use_default rule to an empty name.
func (l *List) Lookup(name string) (*Export, bool) {
	if name == "" && l.useDefault && len(l.order) > 0 {
		return l.byName[l.order[0]], true
	}
	e, ok := l.byName[name]
	return e, ok
}

// All returns exports in registration order, for NBD_OPT_LIST.
func (l *List) All() []*Export {
	out := make([]*Export, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.byName[name])
	}
	return out
}

func (l *List) Len() int { return len(l.order) }
