package main

import (
	"testing"

	"github.com/bouncesift/bouncesift/internal/config"
	"github.com/bouncesift/bouncesift/internal/history"
)

func TestResolveDBPath(t *testing.T) {
	defer func() { dbFile = "" }()

	cfg := &config.Config{Storage: config.StorageConfig{Path: "/var/lib/bouncesift/db.sqlite"}}

	dbFile = "/tmp/cli.db"
	if got := resolveDBPath(cfg); got != "/tmp/cli.db" {
		t.Errorf("flag should win: got %q", got)
	}

	dbFile = ""
	if got := resolveDBPath(cfg); got != "/var/lib/bouncesift/db.sqlite" {
		t.Errorf("config storage path should win over default: got %q", got)
	}

	if got := resolveDBPath(&config.Config{}); got != history.DefaultDBPath() {
		t.Errorf("empty config should fall back to default: got %q", got)
	}
	if got := resolveDBPath(nil); got != history.DefaultDBPath() {
		t.Errorf("nil config should fall back to default: got %q", got)
	}
}
