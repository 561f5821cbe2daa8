package cluster

import "github.com/bfsfs/bfs/pkg/device"

// BlockSize is the fixed virtual/physical block payload size.
const BlockSize = device.BlockSize

// Discipline selects how virtual-block-ids are assigned to devices.
type Discipline string

const (
	// DisciplineLinear maps v to the device whose cumulative prefix first
	// exceeds v; the physical-block-id is v minus that device's prefix start.
	DisciplineLinear Discipline = "linear"
	// DisciplineInterleave round-robins virtual blocks across devices:
	// device index = v % numDevices, physical-block-id = v / numDevices.
	DisciplineInterleave Discipline = "interleave"
)

// Device is the subset of the block-device protocol client the cluster
// needs to read and write physical blocks. Both device.LocalDevice and
// device.RemoteDevice satisfy it.
type Device interface {
	GetBlock(pbid uint64, dst []byte) error
	PutBlock(pbid uint64, src []byte) error
	GetBlocks(ids []uint64) ([]device.IDBlock, error)
	PutBlocks(blocks []device.IDBlock) ([]uint64, error)
}

// DeviceHandle names a configured device and its block count, established
// at cluster initialization (via GET_TOPO for remote devices, or geometry
// inspection for local ones) and held for the cluster's lifetime.
type DeviceHandle struct {
	DeviceID  uint32
	NumBlocks uint64
	Device    Device
}

// allocationEntry is one slot of the dense block-allocation table, indexed
// by virtual-block-id.
type allocationEntry struct {
	used            bool
	deviceID        uint32
	physicalBlockID uint64
	// timestamp increases monotonically per write to this slot. Reserved
	// for a Merkle-freshness extension; populated but not verified on read,
	// matching the core's documented behavior.
	timestamp uint64
}

// Status distinguishes a fresh device read/write from one served out of
// the block cache.
type Status int

const (
	StatusOK Status = iota
	StatusCacheHit
)

func (s Status) String() string {
	if s == StatusCacheHit {
		return "CACHE_HIT"
	}
	return "OK"
}

// PhysicalBlock is a cached or in-flight 4 KiB payload together with the
// back-reference needed to flush it on eviction.
type PhysicalBlock struct {
	VirtualBlockID  uint64
	DeviceID        uint32
	PhysicalBlockID uint64
	Data            []byte
	Dirty           bool
}
