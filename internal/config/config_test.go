package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHome_EnvOverride(t *testing.T) {
	t.Setenv("HUBCAP_HOME", "/tmp/custom-hubcap")
	if got := Home(); got != "/tmp/custom-hubcap" {
		t.Fatalf("Home() = %q, want env override", got)
	}
}

func TestHome_DefaultUnderUserHome(t *testing.T) {
	t.Setenv("HUBCAP_HOME", "")
	got := Home()
	if filepath.Base(got) != ".hubcap" {
		t.Fatalf("Home() = %q, want a .hubcap directory", got)
	}
}

func TestLoad_MissingConfigReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Home != home {
		t.Fatalf("Home = %q, want %q", s.Home, home)
	}
	if s.Config.Version != "1" || s.Config.Hub.OutputMode != "json" {
		t.Fatalf("defaults not applied: %+v", s.Config)
	}
}

func TestLoad_FillsMissingFieldsFromDefaults(t *testing.T) {
	home := t.TempDir()
	partial := "version: \"1\"\nhub:\n  root: /data/hub\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(partial), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Config.Hub.Root != "/data/hub" {
		t.Fatalf("Hub.Root = %q", s.Config.Hub.Root)
	}
	if s.Config.Hub.OutputMode != "json" {
		t.Fatalf("OutputMode not defaulted: %q", s.Config.Hub.OutputMode)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("hub: [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(home); err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestInit_RefusesExistingWithoutForce(t *testing.T) {
	home := t.TempDir()
	if err := Init(home, false); err == nil {
		t.Fatal("expected error for existing home without force")
	}
	if err := Init(home, true); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "config.yaml")); err != nil {
		t.Fatalf("config.yaml missing after init: %v", err)
	}
}

func TestInit_CreatesFreshHome(t *testing.T) {
	home := filepath.Join(t.TempDir(), "fresh")
	if err := Init(home, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s, err := Load(home)
	if err != nil {
		t.Fatalf("Load after init: %v", err)
	}
	if s.Config.Hub.OutputMode != "json" {
		t.Fatalf("OutputMode = %q", s.Config.Hub.OutputMode)
	}
}

func TestSetConfigValue(t *testing.T) {
	home := t.TempDir()
	s := &Store{Home: home, Config: DefaultConfig()}

	if err := s.SetConfigValue("hub.root", "/data/hub"); err != nil {
		t.Fatalf("set hub.root: %v", err)
	}
	if err := s.SetConfigValue("hub.output_mode", "Agent"); err != nil {
		t.Fatalf("set hub.output_mode: %v", err)
	}
	if s.Config.Hub.OutputMode != "agent" {
		t.Fatalf("output mode not normalized: %q", s.Config.Hub.OutputMode)
	}
	if err := s.SetConfigValue("push.telegram", "true"); err != nil {
		t.Fatalf("set push.telegram: %v", err)
	}
	if !s.Config.Push.Telegram {
		t.Fatal("push.telegram not set")
	}

	// Every successful set persists to disk.
	reloaded, err := Load(home)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Config.Hub.Root != "/data/hub" || reloaded.Config.Hub.OutputMode != "agent" {
		t.Fatalf("persisted config wrong: %+v", reloaded.Config)
	}
}

func TestSetConfigValue_Invalid(t *testing.T) {
	s := &Store{Home: t.TempDir(), Config: DefaultConfig()}
	if err := s.SetConfigValue("hub.output_mode", "loud"); err == nil {
		t.Fatal("expected error for bad output mode")
	}
	err := s.SetConfigValue("no.such.key", "x")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Fatalf("unexpected error for unknown key: %v", err)
	}
}

func TestOutputMode_Precedence(t *testing.T) {
	s := &Store{Config: DefaultConfig()}
	s.Config.Hub.OutputMode = "agent"

	t.Setenv("OUTPUT_MODE", "")
	if got := s.OutputMode(); got != "agent" {
		t.Fatalf("config mode = %q, want agent", got)
	}

	t.Setenv("OUTPUT_MODE", "JSON")
	if got := s.OutputMode(); got != "json" {
		t.Fatalf("env mode = %q, want json", got)
	}

	t.Setenv("OUTPUT_MODE", "garbage")
	if got := s.OutputMode(); got != "agent" {
		t.Fatalf("invalid env should fall back to config, got %q", got)
	}

	s.Config.Hub.OutputMode = ""
	if got := s.OutputMode(); got != "json" {
		t.Fatalf("empty config should fall back to json, got %q", got)
	}
}

func TestPushDefaults(t *testing.T) {
	t.Setenv("CAPTURE_WATCH_PUSH_TELEGRAM", "")
	t.Setenv("CAPTURE_WATCH_PUSH_EMAIL", "")
	s := &Store{Config: DefaultConfig()}

	enabled, channel := s.PushDefaults()
	if enabled || channel != "telegram" {
		t.Fatalf("defaults = %t/%q, want false/telegram", enabled, channel)
	}

	s.Config.Push.Email = true
	enabled, channel = s.PushDefaults()
	if !enabled || channel != "email" {
		t.Fatalf("email-only config = %t/%q, want true/email", enabled, channel)
	}

	s.Config.Push.Telegram = true
	enabled, channel = s.PushDefaults()
	if !enabled || channel != "telegram" {
		t.Fatalf("both channels = %t/%q, want true/telegram", enabled, channel)
	}

	// Env toggles win over the config file.
	t.Setenv("CAPTURE_WATCH_PUSH_TELEGRAM", "false")
	t.Setenv("CAPTURE_WATCH_PUSH_EMAIL", "false")
	if enabled, _ := s.PushDefaults(); enabled {
		t.Fatal("env off should override config on")
	}

	s.Config.Push.Telegram = false
	s.Config.Push.Email = false
	t.Setenv("CAPTURE_WATCH_PUSH_EMAIL", "1")
	enabled, channel = s.PushDefaults()
	if !enabled || channel != "email" {
		t.Fatalf("env email toggle = %t/%q, want true/email", enabled, channel)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("HUBCAP_TEST_FLAG", "")
	if !EnvBool("HUBCAP_TEST_FLAG", true) {
		t.Error("unset should return fallback")
	}
	for _, truthy := range []string{"1", "true", "YES", "on"} {
		t.Setenv("HUBCAP_TEST_FLAG", truthy)
		if !EnvBool("HUBCAP_TEST_FLAG", false) {
			t.Errorf("%q should be true", truthy)
		}
	}
	t.Setenv("HUBCAP_TEST_FLAG", "0")
	if EnvBool("HUBCAP_TEST_FLAG", true) {
		t.Error("0 should be false even with true fallback")
	}
}

func TestCheckHealth(t *testing.T) {
	home := t.TempDir()
	root := t.TempDir()

	issues := CheckHealth(home, root)
	if len(issues) != 5 {
		t.Fatalf("got %d issues for empty hub, want 5 missing-dir warnings: %v", len(issues), issues)
	}
	for _, issue := range issues {
		if issue.Severity != "warning" {
			t.Fatalf("missing dir should be a warning: %+v", issue)
		}
	}

	for _, dir := range []string{"00_inbox", "02_work", "03_life", "04_knowledge", "05_meta"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if issues := CheckHealth(home, root); len(issues) != 0 {
		t.Fatalf("healthy hub reported issues: %v", issues)
	}

	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte("hub: [broken"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	issues = CheckHealth(home, root)
	if len(issues) != 1 || issues[0].Severity != "error" {
		t.Fatalf("broken yaml should be one error: %v", issues)
	}
}
