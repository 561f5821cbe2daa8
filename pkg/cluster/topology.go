package cluster

import "github.com/bfsfs/bfs/pkg/device"

// LocalHandle queries a local device's geometry and wraps it as a
// DeviceHandle.
func LocalHandle(d *device.LocalDevice) DeviceHandle {
	id, n := d.Topology()
	return DeviceHandle{DeviceID: id, NumBlocks: n, Device: d}
}

// RemoteHandle issues GET_TOPO against a remote device and wraps the
// result as a DeviceHandle.
func RemoteHandle(d *device.RemoteDevice) (DeviceHandle, error) {
	id, n, err := d.Topology()
	if err != nil {
		return DeviceHandle{}, err
	}
	return DeviceHandle{DeviceID: id, NumBlocks: n, Device: d}, nil
}
