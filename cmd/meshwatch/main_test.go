package main

import (
	"testing"

	"github.com/skobkin/meshwatch/internal/config"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(&cfg, " 0.0.0.0:9000 ", "mesh.db", "debug")

	if !cfg.HTTP.Enabled || cfg.HTTP.Listen != "0.0.0.0:9000" {
		t.Fatalf("expected http api enabled on 0.0.0.0:9000, got %+v", cfg.HTTP)
	}
	if !cfg.Storage.Enabled || cfg.Storage.Path != "mesh.db" {
		t.Fatalf("expected storage enabled at mesh.db, got %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug log level, got %q", cfg.Logging.Level)
	}

	untouched := config.Default()
	applyFlags(&untouched, "", " ", "")
	if untouched.HTTP.Enabled || untouched.Storage.Enabled || untouched.Logging.Level != "info" {
		t.Fatalf("expected empty flags to leave defaults, got %+v", untouched)
	}
}
