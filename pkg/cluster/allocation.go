package cluster

// addressSpace resolves virtual-block-ids to (device, physical-block-id)
// pairs under a fixed allocation discipline, and tracks the dense
// allocation table backing it.
type addressSpace struct {
	discipline Discipline
	handles    []DeviceHandle
	byID       map[uint32]Device
	total      uint64
	// prefix[i] is the first virtual-block-id served by handles[i] under
	// the linear discipline; it has len(handles)+1 entries, prefix[len] == total.
	prefix []uint64

	table []allocationEntry
}

func newAddressSpace(discipline Discipline, handles []DeviceHandle) (*addressSpace, error) {
	if discipline != DisciplineLinear && discipline != DisciplineInterleave {
		return nil, ErrUnknownDiscipline
	}

	as := &addressSpace{
		discipline: discipline,
		handles:    handles,
		byID:       make(map[uint32]Device, len(handles)),
		prefix:     make([]uint64, len(handles)+1),
	}

	var total uint64
	for i, h := range handles {
		as.byID[h.DeviceID] = h.Device
		as.prefix[i] = total
		total += h.NumBlocks
	}
	as.prefix[len(handles)] = total
	as.total = total
	as.table = make([]allocationEntry, total)

	return as, nil
}

// resolve maps a virtual-block-id to its device index (into as.handles)
// and physical-block-id, without consulting or updating the allocation
// table.
func (as *addressSpace) resolve(v uint64) (deviceIdx int, pbid uint64, err error) {
	if v >= as.total || len(as.handles) == 0 {
		return 0, 0, ErrUnmappableAddress
	}

	switch as.discipline {
	case DisciplineInterleave:
		n := uint64(len(as.handles))
		return int(v % n), v / n, nil
	default: // DisciplineLinear
		for i := len(as.handles) - 1; i >= 0; i-- {
			if v >= as.prefix[i] {
				return i, v - as.prefix[i], nil
			}
		}
		return 0, 0, ErrUnmappableAddress
	}
}

// allocate resolves v and stamps the allocation table entry, returning
// the device and physical-block-id to use.
func (as *addressSpace) allocate(v uint64) (deviceID uint32, pbid uint64, err error) {
	idx, pbid, err := as.resolve(v)
	if err != nil {
		return 0, 0, err
	}
	h := as.handles[idx]
	entry := &as.table[v]
	entry.used = true
	entry.deviceID = h.DeviceID
	entry.physicalBlockID = pbid
	entry.timestamp++
	return h.DeviceID, pbid, nil
}

// lookup resolves v for a read without mutating the allocation table's
// timestamp; an unallocated (never-written) slot still resolves to its
// deterministic device/pbid, since the discipline is a pure function of v.
func (as *addressSpace) lookup(v uint64) (deviceID uint32, pbid uint64, err error) {
	idx, pbid, err := as.resolve(v)
	if err != nil {
		return 0, 0, err
	}
	return as.handles[idx].DeviceID, pbid, nil
}

func (as *addressSpace) device(deviceID uint32) (Device, bool) {
	d, ok := as.byID[deviceID]
	return d, ok
}
