package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentKey is the attribute that names the emitting component.
const ComponentKey = "component"

// ComponentFilterHandler filters records by a per-component minimum level.
// The component is taken from a "component" attribute, either attached with
// Logger.With or passed on the record. Records without one use the default
// level. Levels can be changed at runtime; handlers derived with WithAttrs
// or WithGroup share the same level table.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *levelTable
	component string
	scoped    bool // component came from WithAttrs
}

type levelTable struct {
	mu           sync.RWMutex
	levels       map[string]slog.Level
	defaultLevel slog.Level
}

// NewComponentFilterHandler wraps next. Configure next to accept every
// level; this handler does the filtering.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &levelTable{
			levels:       make(map[string]slog.Level),
			defaultLevel: defaultLevel,
		},
	}
}

// SetLevel sets the minimum level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	h.levels.levels[component] = level
	h.levels.mu.Unlock()
}

// ClearLevel reverts a component to the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	delete(h.levels.levels, component)
	h.levels.mu.Unlock()
}

// Level returns the effective minimum level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	if l, ok := h.levels.levels[component]; ok {
		return l
	}
	return h.levels.defaultLevel
}

// DefaultLevel returns the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	return h.levels.defaultLevel
}

// lowest returns the most verbose level any component may log at.
func (h *ComponentFilterHandler) lowest() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	low := h.levels.defaultLevel
	for _, l := range h.levels.levels {
		low = min(low, l)
	}
	return low
}

func (h *ComponentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.next == nil {
		return false
	}
	if h.scoped {
		if level < h.Level(h.component) {
			return false
		}
	} else if level < h.lowest() {
		// The record may still name a component with a lower level;
		// Handle decides once the attributes are known.
		return false
	}
	return h.next.Enabled(ctx, level)
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.next == nil {
		return nil
	}
	component := h.component
	if !h.scoped {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.Level(component) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	for _, a := range attrs {
		if a.Key == ComponentKey {
			clone.component = a.Value.String()
			clone.scoped = true
		}
	}
	return &clone
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}
