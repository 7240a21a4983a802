package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ggoodman/respondio-mcp/config"
	"github.com/ggoodman/respondio-mcp/server"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := server.Name + " " + server.Version; !strings.HasPrefix(out.String(), want) {
		t.Fatalf("unexpected output: want prefix %q got %q", want, out.String())
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("MCP_SERVER_MODE", "http")
	t.Setenv("PORT", "3000")
	t.Setenv("DEBUG", "")
	t.Setenv("RESPONDIO_API_KEY", "key")

	cmd := newServeCmd()
	flags := &serveFlags{}
	cmd.ResetFlags()
	bindServeFlags(cmd, flags)
	if err := cmd.ParseFlags([]string{"--mode", "stdio", "--port", "8080", "--debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if want, got := config.ModeStdio, cfg.Mode; want != got {
		t.Fatalf("unexpected mode: want %q got %q", want, got)
	}
	if want, got := 8080, cfg.Port; want != got {
		t.Fatalf("unexpected port: want %d got %d", want, got)
	}
	if !cfg.Debug {
		t.Fatalf("expected debug")
	}
}

func TestUnsetFlagsKeepEnvironment(t *testing.T) {
	t.Setenv("MCP_SERVER_MODE", "")
	t.Setenv("PORT", "4000")

	cmd := newServeCmd()
	flags := &serveFlags{}
	cmd.ResetFlags()
	bindServeFlags(cmd, flags)
	if err := cmd.ParseFlags(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if want, got := 4000, cfg.Port; want != got {
		t.Fatalf("unexpected port: want %d got %d", want, got)
	}
	if want, got := config.ModeHTTP, cfg.Mode; want != got {
		t.Fatalf("unexpected mode: want %q got %q", want, got)
	}
}

func TestInvalidConfigIsReported(t *testing.T) {
	t.Setenv("MCP_SERVER_MODE", "stdio")
	t.Setenv("RESPONDIO_API_KEY", "")

	root := newRootCmd()
	root.SetArgs([]string{"serve"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "RESPONDIO_API_KEY") {
		t.Fatalf("expected api key error, got %v", err)
	}
}
