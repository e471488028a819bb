package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"docquery/internal/codec"
	"docquery/internal/config"
	"docquery/internal/cql"
)

// fiveRows answers every read with up to five rows.
type fiveRows struct{}

func (fiveRows) ExecuteRead(_ context.Context, _ cql.Statement, p cql.Paging) (cql.Page, error) {
	var rows []cql.Row
	for _, id := range []string{"a", "b", "c", "d", "e"}[:min(5, p.PageSize)] {
		rows = append(rows, cql.Row{Key: codec.Key{Type: codec.KeyString, Text: id}})
	}
	return cql.Page{Rows: rows}, nil
}

func (fiveRows) ExecuteWrite(context.Context, cql.Statement) (cql.WriteResult, error) {
	return cql.WriteResult{}, errors.New("read only")
}

func withCountLimit(n int) config.Config {
	cfg := config.Default()
	cfg.Query.MaxCountLimit = n
	return cfg
}

func count(t *testing.T, m *monitor) (int, bool) {
	t.Helper()
	res, err := m.engine.Load().Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return res.Count, res.MoreData
}

func TestMonitorReloadReplacesEngine(t *testing.T) {
	m := newMonitor(fiveRows{}, withCountLimit(10), nil, nil)
	if n, more := count(t, m); n != 5 || more {
		t.Fatalf("count = %d (more %v), want 5", n, more)
	}

	m.reload(withCountLimit(2), nil)
	if n, more := count(t, m); n != 2 || !more {
		t.Errorf("count after reload = %d (more %v), want 2 with more data", n, more)
	}

	m.reload(config.Config{}, errors.New("invalid config"))
	if n, _ := count(t, m); n != 2 {
		t.Errorf("count after rejected reload = %d, want 2", n)
	}
}

func TestMonitorRun(t *testing.T) {
	m := newMonitor(fiveRows{}, withCountLimit(3), nil, nil)
	var out bytes.Buffer
	if err := m.run(context.Background(), nil, time.Millisecond, 2, &out, &bytes.Buffer{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output lines = %d, want 2:\n%s", len(lines), out.String())
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, "\t3+") {
			t.Errorf("line %q does not report a capped count of 3", l)
		}
	}
}

func TestMonitorFollowsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docquery.yaml")
	write := func(content string) {
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}
	}
	write("query:\n  max_count_limit: 10\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := newMonitor(fiveRows{}, cfg, nil, nil)
	if _, err := config.Watch(path, m.reload); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		write("query:\n  max_count_limit: 2\n")
		time.Sleep(100 * time.Millisecond)
		if n, more := count(t, m); n == 2 && more {
			return
		}
	}
	t.Fatal("engine did not pick up the rewritten config file")
}
