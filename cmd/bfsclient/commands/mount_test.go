package commands

import "testing"

func TestMountCommandRequiresMountpointArg(t *testing.T) {
	if err := mountCmd.Args(mountCmd, nil); err == nil {
		t.Fatal("expected mount to require at least one argument")
	}
	if err := mountCmd.Args(mountCmd, []string{"/mnt/bfs"}); err != nil {
		t.Fatalf("mount should accept a single mountpoint argument: %v", err)
	}
	if err := mountCmd.Args(mountCmd, []string{"/mnt/bfs", "-o", "allow_other"}); err != nil {
		t.Fatalf("mount should accept pass-through fuse args: %v", err)
	}
}
