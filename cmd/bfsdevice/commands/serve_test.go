package commands

import (
	"testing"

	"github.com/bfsfs/bfs/pkg/config"
)

func TestFindDeviceReturnsMatchingEntry(t *testing.T) {
	cfg := &config.Config{
		DeviceLayer: config.DeviceLayerConfig{
			Devices: []config.DeviceConfig{
				{DeviceID: 1, Type: "local", Path: "/tmp/one"},
				{DeviceID: 2, Type: "remote", IP: "10.0.0.2", Port: 9000},
			},
		},
	}

	dc, err := findDevice(cfg, 2)
	if err != nil {
		t.Fatalf("findDevice: %v", err)
	}
	if dc.Type != "remote" || dc.IP != "10.0.0.2" {
		t.Errorf("findDevice returned wrong entry: %+v", dc)
	}
}

func TestFindDeviceUnknownID(t *testing.T) {
	cfg := &config.Config{}
	if _, err := findDevice(cfg, 99); err == nil {
		t.Fatal("expected error for unknown device id")
	}
}

func TestServeCommandHasDeviceIDFlag(t *testing.T) {
	if serveCmd.Flags().Lookup("device-id") == nil {
		t.Fatal("serve command missing --device-id flag")
	}
}
