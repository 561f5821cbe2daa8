package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bfsfs/bfs/pkg/config"
)

func TestConfigInitWritesLoadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bfs.yaml")

	cfgFile = path
	defer func() { cfgFile = "" }()

	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}

	if _, err := config.Load(path); err != nil {
		t.Fatalf("config written by init did not load: %v", err)
	}
}

func TestConfigInitRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bfs.yaml")

	cfgFile = path
	defer func() { cfgFile = "" }()

	if err := config.Save(config.Default(), path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	configInitForce = false
	if err := runConfigInit(configInitCmd, nil); err == nil {
		t.Fatal("expected error when config file already exists")
	}

	configInitForce = true
	defer func() { configInitForce = false }()
	if err := runConfigInit(configInitCmd, nil); err != nil {
		t.Fatalf("runConfigInit with --force: %v", err)
	}
}
