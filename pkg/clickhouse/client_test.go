package clickhouse

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host: "ch", Port: 9000, Database: "fx", User: "u", Password: "p",
		DialTimeout: 5 * time.Second, MaxExecTime: 30 * time.Second,
		AsyncInsert: true, WaitForAsync: true,
	}
	dsn := buildDSN(cfg)
	if !strings.HasPrefix(dsn, "clickhouse://u:p@ch:9000/fx?dial_timeout=5s") {
		t.Fatalf("unexpected dsn %s", dsn)
	}
	for _, part := range []string{"&max_execution_time=30", "&async_insert=1", "&wait_for_async_insert=1"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn %s missing %s", dsn, part)
		}
	}

	cfg = ClientConfig{Host: "ch", Port: 8123, Database: "fx", UseHTTP: true}
	if got := buildDSN(cfg); got != "clickhouse+http://:@ch:8123/fx" {
		t.Fatalf("http dsn = %s", got)
	}
	cfg = ClientConfig{Host: "ch", Port: 9000, Database: "fx", AsyncInsert: true}
	if got := buildDSN(cfg); got != "clickhouse://:@ch:9000/fx?async_insert=1" {
		t.Fatalf("first param must use '?': %s", got)
	}
}

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(context.Background(), WithPort(9000)); err == nil {
		t.Fatal("want error without host")
	}
}

func TestCheckMigrations(t *testing.T) {
	ok := []Migration{{Version: 1, Name: "base"}, {Version: 2, Name: "index"}}
	if err := checkMigrations(ok); err != nil {
		t.Fatalf("ordered migrations rejected: %v", err)
	}
	for name, ms := range map[string][]Migration{
		"zero":      {{Version: 0, Name: "base"}},
		"duplicate": {{Version: 1, Name: "a"}, {Version: 1, Name: "b"}},
		"unordered": {{Version: 2, Name: "a"}, {Version: 1, Name: "b"}},
	} {
		if err := checkMigrations(ms); err == nil {
			t.Fatalf("%s: want error", name)
		}
	}
}

func TestPendingMigrations(t *testing.T) {
	ms := []Migration{{Version: 1, Name: "base"}, {Version: 2, Name: "index"}, {Version: 3, Name: "ttl"}}
	got := pendingMigrations(ms, map[int]bool{1: true, 3: true})
	if len(got) != 1 || got[0].Version != 2 {
		t.Fatalf("pending = %+v", got)
	}
	if got := pendingMigrations(ms, nil); len(got) != 3 {
		t.Fatalf("fresh database must run all, got %d", len(got))
	}
}
