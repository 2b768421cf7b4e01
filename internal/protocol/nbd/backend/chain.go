package backend

import "fmt"

// FilterFactory builds a Filter bound to the given Next link. Config-driven
// construction (pkg/config) holds a name -> FilterFactory table mirroring
// the teacher's pkg/config/stores.go type-switch pattern.
type FilterFactory func(next Link) (Filter, error)

// Chain composes an ordered list of filters in front of a terminal
// plugin into a single Link. Filters are applied outermost-first: the
// first entry in Filters is the one the dispatcher calls directly, and
// it is the last one whose Close runs (spec §3's outer-to-inner open,
// inner-to-outer close ordering).
type Chain struct {
	head Link
	// links is head-to-tail (outermost filter first, plugin last), kept
	// for diagnostics and DebugFlags resolution.
	links []Link
}

// NewChain builds a Chain from a plugin and an ordered list of filter
// factories (outermost first).
func NewChain(plugin Plugin, filterFactories []FilterFactory) (*Chain, error) {
	if plugin == nil {
		return nil, fmt.Errorf("nbd: chain requires a non-nil plugin")
	}
	links := []Link{plugin}
	var cur Link = plugin
	// Build innermost-out so each filter's Next is already constructed.
	for i := len(filterFactories) - 1; i >= 0; i-- {
		f, err := filterFactories[i](cur)
		if err != nil {
			return nil, fmt.Errorf("nbd: building filter %d: %w", i, err)
		}
		cur = f
		links = append(links, f)
	}
	// links is currently plugin, innermost filter, ..., outermost filter.
	// Reverse it so links[0] is the outermost (the head).
	for i, j := 0, len(links)-1; i < j; i, j = i+1, j-1 {
		links[i], links[j] = links[j], links[i]
	}
	return &Chain{head: cur, links: links}, nil
}

// Head is the outermost Link the dispatcher calls into.
func (c *Chain) Head() Link { return c.head }

// Links returns the chain ordered outermost-first.
func (c *Chain) Links() []Link { return c.links }

// ResolvedThreadModel is the minimum ThreadModel across every link,
// matching spec §5's "the effective thread model is the most
// conservative one declared anywhere in the chain."
func (c *Chain) ResolvedThreadModel() ThreadModel {
	model := Parallel
	for _, l := range c.links {
		model = Min(model, l.ThreadModel())
	}
	return model
}

// DebugFlag is one plugin-or-filter debug flag/value pair, consulted at
// chain construction time (original_source/server/debug-flags.c). Used
// tracks whether any link actually read the flag, so a server can warn
// about dead configuration the way nbdkit does at shutdown.
type DebugFlag struct {
	Plugin string
	Flag   string
	Value  string
	Used   bool
}

// DebugFlags is the per-chain table of -D plugin.flag=value settings.
type DebugFlags struct {
	flags []*DebugFlag
}

func NewDebugFlags() *DebugFlags { return &DebugFlags{} }

func (d *DebugFlags) Set(plugin, flag, value string) {
	d.flags = append(d.flags, &DebugFlag{Plugin: plugin, Flag: flag, Value: value})
}

// Get looks up a flag's value for a given plugin/filter name, marking it
// used, and reports whether it was present.
func (d *DebugFlags) Get(plugin, flag string) (string, bool) {
	for _, f := range d.flags {
		if f.Plugin == plugin && f.Flag == flag {
			f.Used = true
			return f.Value, true
		}
	}
	return "", false
}

// Unused returns every flag no link consulted, for a startup warning.
func (d *DebugFlags) Unused() []*DebugFlag {
	var out []*DebugFlag
	for _, f := range d.flags {
		if !f.Used {
			out = append(out, f)
		}
	}
	return out
}
