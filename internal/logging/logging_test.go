package logging

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
)

// recorder keeps the message of every record it is handed. Derived
// handlers share the same message list.
type recorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, rec.Message)
	r.mu.Unlock()
	return nil
}

func (r *recorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recorder) WithGroup(string) slog.Handler      { return r }

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func TestDefault(t *testing.T) {
	if l := Default(nil); l == nil || l.Enabled(context.Background(), slog.LevelError) {
		t.Error("Default(nil) is not a discarding logger")
	}
	l := slog.New(&recorder{})
	if Default(l) != l {
		t.Error("Default replaced a non-nil logger")
	}
}

// TestComponentResolution covers where the component comes from: a
// logger scoped with With fixes it for every record, while an unscoped
// logger reads it from each record's attributes.
func TestComponentResolution(t *testing.T) {
	tests := []struct {
		name   string
		log    func(*slog.Logger)
		logged bool
	}{
		{"scoped debug component", func(l *slog.Logger) { l.With("component", "query").Debug("m") }, true},
		{"scoped default component below level", func(l *slog.Logger) { l.With("component", "task").Info("m") }, false},
		{"scoped default component at level", func(l *slog.Logger) { l.With("component", "task").Warn("m") }, true},
		{"record attr names debug component", func(l *slog.Logger) { l.Debug("m", "component", "query") }, true},
		{"record attr names default component", func(l *slog.Logger) { l.Debug("m", "component", "task") }, false},
		{"scope wins over record attr", func(l *slog.Logger) { l.With("component", "task").Debug("m", "component", "query") }, false},
		{"no component below default", func(l *slog.Logger) { l.Info("m") }, false},
		{"no component at default", func(l *slog.Logger) { l.Error("m") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			h := NewComponentFilterHandler(rec, slog.LevelWarn)
			h.SetLevel("query", slog.LevelDebug)

			tt.log(slog.New(h))
			if got := len(rec.messages()) == 1; got != tt.logged {
				t.Errorf("logged = %v, want %v", got, tt.logged)
			}
		})
	}
}

func TestLowest(t *testing.T) {
	h := NewComponentFilterHandler(&recorder{}, slog.LevelWarn)
	if got := h.lowest(); got != slog.LevelWarn {
		t.Errorf("lowest with no overrides = %v, want WARN", got)
	}

	h.SetLevel("cassandra", slog.LevelError)
	if got := h.lowest(); got != slog.LevelWarn {
		t.Errorf("lowest with a quieter override = %v, want WARN", got)
	}

	h.SetLevel("write", slog.LevelDebug)
	if got := h.lowest(); got != slog.LevelDebug {
		t.Errorf("lowest with a debug override = %v, want DEBUG", got)
	}

	h.ClearLevel("write")
	if got := h.lowest(); got != slog.LevelWarn {
		t.Errorf("lowest after clearing = %v, want WARN", got)
	}
}

func TestEnabledUnscopedFollowsLowest(t *testing.T) {
	ctx := context.Background()
	h := NewComponentFilterHandler(&recorder{}, slog.LevelWarn)
	if h.Enabled(ctx, slog.LevelDebug) {
		t.Fatal("unscoped debug enabled with no overrides")
	}

	h.SetLevel("query", slog.LevelDebug)
	if !h.Enabled(ctx, slog.LevelDebug) {
		t.Error("unscoped debug disabled although a component logs at debug")
	}
	scoped := h.WithAttrs([]slog.Attr{slog.String("component", "task")})
	if scoped.Enabled(ctx, slog.LevelDebug) {
		t.Error("debug enabled for a component without an override")
	}
}

func TestDerivedHandlersShareLevels(t *testing.T) {
	rec := &recorder{}
	h := NewComponentFilterHandler(rec, slog.LevelWarn)
	logger := slog.New(h).With("component", "write").WithGroup("batch")

	logger.Debug("before")
	h.SetLevel("write", slog.LevelDebug)
	logger.Debug("after")

	if got := rec.messages(); !slices.Equal(got, []string{"after"}) {
		t.Errorf("messages = %v, want [after]", got)
	}
	if got := h.Level("write"); got != slog.LevelDebug {
		t.Errorf("Level(write) = %v", got)
	}
	if got := h.Level("task"); got != h.DefaultLevel() {
		t.Errorf("Level(task) = %v, want default %v", got, h.DefaultLevel())
	}
}

func TestLevelChangesWhileLogging(t *testing.T) {
	rec := &recorder{}
	h := NewComponentFilterHandler(rec, slog.LevelInfo)
	logger := slog.New(h).With("component", "query")

	var wg sync.WaitGroup
	for range 4 {
		wg.Go(func() {
			for range 100 {
				logger.Info("m")
			}
		})
	}
	wg.Go(func() {
		for range 100 {
			h.SetLevel("query", slog.LevelDebug)
			h.ClearLevel("query")
		}
	})
	wg.Wait()

	if got := len(rec.messages()); got != 400 {
		t.Errorf("messages = %d, want 400", got)
	}
}
