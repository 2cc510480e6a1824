package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuild_RequiresAtLeastOneProtocol(t *testing.T) {
	_, err := Build("127.0.0.1", 1080, false, false, false, nil, "", "")
	if err == nil {
		t.Fatal("expected error when neither --socks4 nor --socks5 is set")
	}
}

func TestBuild_InvalidIP(t *testing.T) {
	_, err := Build("not-an-ip", 1080, true, true, false, nil, "", "")
	if err == nil {
		t.Fatal("expected error for invalid --ip")
	}
}

func TestBuild_PortRange(t *testing.T) {
	if _, err := Build("127.0.0.1", 0, true, true, false, nil, "", ""); err == nil {
		t.Fatal("expected error for port 0")
	}
	if _, err := Build("127.0.0.1", 70000, true, true, false, nil, "", ""); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestBuild_AuthRequiresSocks5AndUsers(t *testing.T) {
	if _, err := Build("127.0.0.1", 1080, true, false, true, []string{"alice:secret"}, "", ""); err == nil {
		t.Fatal("expected error: --auth without --socks5")
	}
	if _, err := Build("127.0.0.1", 1080, false, true, true, nil, "", ""); err == nil {
		t.Fatal("expected error: --auth without any users")
	}
	cfg, err := Build("127.0.0.1", 1080, false, true, true, []string{"alice:secret"}, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RequireAuth || len(cfg.Users) != 1 {
		t.Fatalf("got %+v", cfg)
	}
}

func TestBuild_DedupesUsersAcrossFlagsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	contents := "users:\n  - user: alice\n    pass: secret\n  - user: bob\n    pass: hunter2\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write users file: %v", err)
	}

	cfg, err := Build("0.0.0.0", 1080, false, true, true, []string{"alice:secret"}, path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Users) != 2 {
		t.Fatalf("got %d users, want 2 (alice deduped, bob added): %+v", len(cfg.Users), cfg.Users)
	}
}

func TestParseUserFlag(t *testing.T) {
	u, err := ParseUserFlag("alice:secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Name != "alice" || u.Pass != "secret" {
		t.Fatalf("got %+v", u)
	}

	if _, err := ParseUserFlag("noseparator"); err == nil {
		t.Fatal("expected error for missing ':'")
	}
	if _, err := ParseUserFlag(":onlypass"); err == nil {
		t.Fatal("expected error for empty username")
	}
}

func TestParseUserFlag_PasswordMayContainColon(t *testing.T) {
	u, err := ParseUserFlag("alice:pass:word")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Pass != "pass:word" {
		t.Fatalf("got pass = %q, want pass:word", u.Pass)
	}
}

func TestLoadUsersFile_RejectsEmptyUsername(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	if err := os.WriteFile(path, []byte("users:\n  - user: \"\"\n    pass: x\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadUsersFile(path); err == nil {
		t.Fatal("expected error for empty username entry")
	}
}
