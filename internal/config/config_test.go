package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.TreePath() != filepath.Join(projectDir, "tree.svg") {
		t.Fatalf("tree path not resolved: %s", c.TreePath())
	}
	if c.StorePath() != filepath.Join(projectDir, ProjectDirName, "state", "scores.json") {
		t.Fatalf("unexpected store path %s", c.StorePath())
	}
	if c.Project.Engine.StopWindow != 1500*time.Millisecond || c.Project.Engine.MaxSpeed != 4 {
		t.Fatalf("engine defaults not applied: %+v", c.Project.Engine)
	}
}

func TestInitDirWritesParsableConfig(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitDir(projectDir); err != nil {
		t.Fatalf("InitDir: %v", err)
	}
	for _, dir := range []string{"logs", "state"} {
		if _, err := os.Stat(filepath.Join(projectDir, ProjectDirName, dir)); err != nil {
			t.Fatalf("missing %s: %v", dir, err)
		}
	}
	c, err := Load(projectDir)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if c.Project.Engine.EaseWindow != 500*time.Millisecond {
		t.Fatalf("ease window = %s", c.Project.Engine.EaseWindow)
	}
	if c.Project.Bridge.Enabled == nil || !*c.Project.Bridge.Enabled {
		t.Fatalf("bridge should be enabled by default config")
	}
}

func TestLoadParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	root := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
tree: assets/tree.svg
store:
  backend: SQLite
engine:
  acceleration_power: 3
  stop_window: 2s
  color_precedence: Element
logging:
  level: debug
`)
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(projectDir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !strings.HasPrefix(c.TreePath(), projectDir) || !strings.HasSuffix(c.TreePath(), filepath.Join("assets", "tree.svg")) {
		t.Fatalf("tree path = %s", c.TreePath())
	}
	if c.Project.Store.Backend != BackendSQLite || filepath.Base(c.StorePath()) != "scores.db" {
		t.Fatalf("store = %+v path %s", c.Project.Store, c.StorePath())
	}
	if c.Project.Engine.AccelerationPower != 3 || c.Project.Engine.StopWindow != 2*time.Second {
		t.Fatalf("engine = %+v", c.Project.Engine)
	}
	if c.Project.Engine.ColorPrecedence != "element" || c.Project.Logging.Level != "debug" {
		t.Fatalf("keywords not normalized: %+v", c.Project)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SKILLTREE_STORE_BACKEND", "memory")
	t.Setenv("SKILLTREE_LOG_LEVEL", "warn")
	c, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Project.Store.Backend != BackendMemory || c.Project.Logging.Level != "warn" {
		t.Fatalf("env overrides ignored: %+v", c.Project)
	}
}

func TestLoadValidation(t *testing.T) {
	projectDir := t.TempDir()
	root := filepath.Join(projectDir, ProjectDirName)
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	configYAML := strings.TrimSpace(`
version: 1
store:
  backend: redis
`)
	if err := os.WriteFile(filepath.Join(root, "config.yaml"), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(projectDir); err == nil {
		t.Fatalf("expected validation error but got none")
	}
}
