package configuration

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "CRM_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "pkg", "crud")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("CRM_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("CRM_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func TestValidate_DefaultsAreConsistent(t *testing.T) {
	c := &Configuration{
		Store:   StoreOptions{Backend: "Postgres"},
		Lock:    LockOptions{Backend: ""},
		Profile: ProfileOptions{RecentLimit: 10, TextMaxLen: 500},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.Store.Backend != StorePostgres {
		t.Fatalf("expected normalized backend, got %q", c.Store.Backend)
	}
	if c.Lock.Backend != LockLocal {
		t.Fatalf("expected empty lock backend to default to local, got %q", c.Lock.Backend)
	}
	if c.Profile.NotifyMode != NotifyOutbox {
		t.Fatalf("expected default notify mode outbox, got %q", c.Profile.NotifyMode)
	}
}

func TestValidate_RejectsInconsistentBackends(t *testing.T) {
	cases := map[string]Configuration{
		"redis without url": {
			Store:   StoreOptions{Backend: StorePostgres},
			Lock:    LockOptions{Backend: LockRedis},
			Profile: ProfileOptions{RecentLimit: 1, TextMaxLen: 1},
		},
		"advisory locks on memory store": {
			Store:   StoreOptions{Backend: StoreMemory},
			Lock:    LockOptions{Backend: LockPostgres},
			Profile: ProfileOptions{RecentLimit: 1, TextMaxLen: 1, NotifyMode: NotifySync},
		},
		"outbox on sqlite store": {
			Store:   StoreOptions{Backend: StoreSQLite},
			Lock:    LockOptions{Backend: LockLocal},
			Profile: ProfileOptions{RecentLimit: 1, TextMaxLen: 1, NotifyMode: NotifyOutbox},
		},
		"zero recent limit": {
			Store:   StoreOptions{Backend: StoreMemory},
			Lock:    LockOptions{Backend: LockLocal},
			Profile: ProfileOptions{TextMaxLen: 1, NotifyMode: NotifySync},
		},
		"unknown store": {
			Store:   StoreOptions{Backend: "mongo"},
			Profile: ProfileOptions{RecentLimit: 1, TextMaxLen: 1},
		},
	}
	for name, c := range cases {
		c := c
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestTerminalStageList(t *testing.T) {
	p := ProfileOptions{TerminalStages: " Closed_Won, closed_lost ,,lost"}
	got := p.TerminalStageList()
	want := []string{"closed_won", "closed_lost", "lost"}
	if len(got) != len(want) {
		t.Fatalf("want %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v got %v", want, got)
		}
	}
}
