package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	q := cfg.Query
	if q.MaxInOperatorValueSize != 100 || q.DefaultPageSize != 20 || q.MaxSortReadLimit != 10000 {
		t.Errorf("query defaults = %+v", q)
	}
	if cfg.Execution.MaxConcurrency != 16 || cfg.Execution.LWTRetries != 3 {
		t.Errorf("execution defaults = %+v", cfg.Execution)
	}
	if len(cfg.Cassandra.Hosts) != 1 || cfg.Cassandra.Hosts[0] != "127.0.0.1" {
		t.Errorf("hosts = %v", cfg.Cassandra.Hosts)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "docquery.yaml", `
cassandra:
  hosts: [db1, db2]
  keyspace: app
  timeout: 3s
query:
  default_page_size: 50
execution:
  statements_per_second: 200
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Cassandra.Hosts; len(got) != 2 || got[0] != "db1" || got[1] != "db2" {
		t.Errorf("hosts = %v", got)
	}
	if cfg.Cassandra.Keyspace != "app" || cfg.Cassandra.Table != "documents" {
		t.Errorf("keyspace/table = %s/%s", cfg.Cassandra.Keyspace, cfg.Cassandra.Table)
	}
	if cfg.Cassandra.Timeout != 3*time.Second {
		t.Errorf("timeout = %v", cfg.Cassandra.Timeout)
	}
	if cfg.Query.DefaultPageSize != 50 || cfg.Query.MaxSortReadLimit != 10000 {
		t.Errorf("query = %+v", cfg.Query)
	}
	if cfg.Execution.StatementsPerSecond != 200 {
		t.Errorf("statements_per_second = %v", cfg.Execution.StatementsPerSecond)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "docquery.json", `{"query": {"default_page_size": 50}}`)
	t.Setenv("DOCQUERY_QUERY_DEFAULT_PAGE_SIZE", "75")
	t.Setenv("DOCQUERY_CASSANDRA_TABLE", "docs_v2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.DefaultPageSize != 75 {
		t.Errorf("default_page_size = %d, want 75", cfg.Query.DefaultPageSize)
	}
	if cfg.Cassandra.Table != "docs_v2" {
		t.Errorf("table = %q, want docs_v2", cfg.Cassandra.Table)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, "bad.yaml", "query:\n  default_page_size: 0\n  max_count_limit: -1\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load succeeded with invalid values")
	}
	for _, want := range []string{"default_page_size", "max_count_limit"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestWatchRequiresPath(t *testing.T) {
	if _, err := Watch("", func(Config, error) {}); err == nil {
		t.Fatal("Watch without a path succeeded")
	}
}

// replaceFile swaps in new content with a rename, so a watcher never sees
// a half-written file.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func TestWatchReportsFileChanges(t *testing.T) {
	path := writeFile(t, "docquery.yaml", "query:\n  max_count_limit: 10\n")

	changes := make(chan Config, 16)
	cfg, err := Watch(path, func(cfg Config, err error) {
		if err != nil {
			return
		}
		select {
		case changes <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if cfg.Query.MaxCountLimit != 10 {
		t.Fatalf("initial max_count_limit = %d, want 10", cfg.Query.MaxCountLimit)
	}

	deadline := time.After(5 * time.Second)
	rewrite := time.NewTicker(100 * time.Millisecond)
	defer rewrite.Stop()
	replaceFile(t, path, "query:\n  max_count_limit: 2\n")
	for {
		select {
		case got := <-changes:
			if got.Query.MaxCountLimit == 2 {
				return
			}
		case <-rewrite.C:
			replaceFile(t, path, "query:\n  max_count_limit: 2\n")
		case <-deadline:
			t.Fatal("no change reported for rewritten config file")
		}
	}
}
