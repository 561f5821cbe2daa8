package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "bfs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndParsesByteSize(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
bfsDeviceLayer:
  devices:
    - type: local
      did: 0
      path: `+filepath.ToSlash(dir)+`/dev0.img
      size: 1Mi
      sa:
        initiator: client
        responder: daemon
        key-b64: MDAwMDAwMDAwMDAwMDAwMA==
bfsBlockLayer:
  allocation_discipline: interleave
  num_blocks: 256
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q want default %q", cfg.Logging.Format, "text")
	}
	if len(cfg.DeviceLayer.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(cfg.DeviceLayer.Devices))
	}
	if cfg.DeviceLayer.Devices[0].Size != 1<<20 {
		t.Errorf("device size: got %d want %d (1Mi)", cfg.DeviceLayer.Devices[0].Size, 1<<20)
	}
	if cfg.BlockLayer.AllocationDiscipline != "interleave" {
		t.Errorf("AllocationDiscipline: got %q want interleave", cfg.BlockLayer.AllocationDiscipline)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BlockLayer.AllocationDiscipline != "linear" {
		t.Errorf("expected default discipline linear, got %q", cfg.BlockLayer.AllocationDiscipline)
	}
}

func TestValidateRejectsUnknownAllocationDiscipline(t *testing.T) {
	cfg := Default()
	cfg.BlockLayer.AllocationDiscipline = "round-robin"
	cfg.DeviceLayer.Devices = []DeviceConfig{{
		Type: "local", Path: "/tmp/dev0.img", Size: 1 << 20,
		SA: SecurityAssociationConfig{Initiator: "a", Responder: "b", KeyB64: "MDAwMDAwMDAwMDAwMDAwMA=="},
	}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject an unknown allocation discipline")
	}
}

func TestValidateRejectsLocalDeviceMissingPath(t *testing.T) {
	cfg := Default()
	cfg.DeviceLayer.Devices = []DeviceConfig{{
		Type: "local", Size: 1 << 20,
		SA: SecurityAssociationConfig{Initiator: "a", Responder: "b", KeyB64: "MDAwMDAwMDAwMDAwMDAwMA=="},
	}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject a local device without a path")
	}
}

func TestValidateRejectsRemoteDeviceMissingPort(t *testing.T) {
	cfg := Default()
	cfg.DeviceLayer.Devices = []DeviceConfig{{
		Type: "remote", IP: "10.0.0.5",
		SA: SecurityAssociationConfig{Initiator: "a", Responder: "b", KeyB64: "MDAwMDAwMDAwMDAwMDAwMA=="},
	}}

	if err := Validate(cfg); err == nil {
		t.Fatal("expected Validate to reject a remote device without a port")
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "bfs.yaml")

	cfg := Default()
	cfg.DeviceLayer.Devices = []DeviceConfig{{
		Type: "local", Path: filepath.Join(dir, "dev0.img"), Size: 2 << 20,
		SA: SecurityAssociationConfig{Initiator: "client", Responder: "daemon", KeyB64: "MDAwMDAwMDAwMDAwMDAwMA=="},
	}}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.DeviceLayer.Devices) != 1 || got.DeviceLayer.Devices[0].Path != cfg.DeviceLayer.Devices[0].Path {
		t.Fatalf("round trip mismatch: %+v", got.DeviceLayer.Devices)
	}
}
