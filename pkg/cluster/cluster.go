// Package cluster maps a flat virtual-block-id address space onto a set
// of configured block devices, and layers a write-back block cache over
// that mapping.
//
// A Cluster is built once at startup from a fixed list of device handles
// and an allocation discipline (linear or interleave) and is safe for
// concurrent use; all cache and table mutation is serialized by a single
// mutex, matching the cache's non-reentrant contract.
package cluster

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bfsfs/bfs/pkg/device"
	"github.com/bfsfs/bfs/pkg/metrics"
)

// Cluster is a virtual block address space backed by one or more devices
// and, optionally, a write-back block cache.
type Cluster struct {
	mu      sync.Mutex
	as      *addressSpace
	cache   *blockCache
	errored bool
	err     error
	metrics *metrics.ClusterMetrics
	name    string

	reads, cacheHits uint64
}

// Config describes how to build a Cluster.
type Config struct {
	Discipline Discipline
	Devices    []DeviceHandle
	// CacheCapacity is the number of virtual blocks the cache may hold.
	// Zero disables caching: every read and write goes straight to the
	// owning device.
	CacheCapacity int
	// Name labels this cluster's metrics; defaults to "default".
	Name string
	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.ClusterMetrics
}

// New builds a Cluster from the given configuration.
func New(cfg Config) (*Cluster, error) {
	as, err := newAddressSpace(cfg.Discipline, cfg.Devices)
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "default"
	}

	c := &Cluster{as: as, metrics: cfg.Metrics, name: name}
	if cfg.CacheCapacity > 0 {
		c.cache = newBlockCache(cfg.CacheCapacity, c.flushBlock)
	}
	return c, nil
}

// NumBlocks returns the total size of the virtual address space.
func (c *Cluster) NumBlocks() uint64 {
	return c.as.total
}

func (c *Cluster) checkErrored() error {
	if c.errored {
		return fmt.Errorf("%w: %w", ErrErrored, c.err)
	}
	return nil
}

func (c *Cluster) fail(err error) error {
	c.errored = true
	c.err = err
	return err
}

// flushBlock writes a dirty cache entry back to its owning device. Called
// synchronously from the cache's eviction callback, under c.mu.
func (c *Cluster) flushBlock(blk *PhysicalBlock) error {
	dev, ok := c.as.device(blk.DeviceID)
	if !ok {
		return ErrCacheFlush
	}
	start := time.Now()
	err := dev.PutBlock(blk.PhysicalBlockID, blk.Data)
	c.metrics.ObserveRPCDuration("PUT_BLOCK", time.Since(start))
	if err != nil {
		c.metrics.RecordDeviceError(strconv.FormatUint(uint64(blk.DeviceID), 10))
		return ErrCacheFlush
	}
	blk.Dirty = false
	return nil
}

// Read returns the current contents of virtual block v, consulting the
// cache first when caching is enabled.
func (c *Cluster) Read(v uint64) ([]byte, Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkErrored(); err != nil {
		return nil, StatusOK, err
	}

	c.reads++

	if c.cache != nil {
		if blk, ok := c.cache.Get(v); ok {
			c.cacheHits++
			c.recordCacheHitRatio()
			out := make([]byte, len(blk.Data))
			copy(out, blk.Data)
			c.metrics.RecordBlockOp("read", "cache_hit")
			return out, StatusCacheHit, nil
		}
	}
	c.recordCacheHitRatio()

	deviceID, pbid, err := c.as.lookup(v)
	if err != nil {
		return nil, StatusOK, err
	}
	dev, ok := c.as.device(deviceID)
	if !ok {
		return nil, StatusOK, ErrUnmappableAddress
	}

	data := make([]byte, BlockSize)
	if err := dev.GetBlock(pbid, data); err != nil {
		c.metrics.RecordDeviceError(strconv.FormatUint(uint64(deviceID), 10))
		return nil, StatusOK, c.fail(err)
	}

	if c.cache != nil {
		blk := &PhysicalBlock{VirtualBlockID: v, DeviceID: deviceID, PhysicalBlockID: pbid, Data: data}
		if err := c.cache.Add(v, blk); err != nil {
			return data, StatusOK, c.fail(err)
		}
	}

	c.metrics.RecordBlockOp("read", "ok")
	return data, StatusOK, nil
}

// recordCacheHitRatio reports the running hit ratio since the cluster was
// created. Called with c.mu held.
func (c *Cluster) recordCacheHitRatio() {
	if c.reads == 0 {
		return
	}
	c.metrics.SetCacheHitRatio(c.name, float64(c.cacheHits)/float64(c.reads))
}

// Write stores data as virtual block v. When caching is enabled the write
// is buffered dirty in the cache unless sync is set, in which case it is
// flushed to the device before Write returns.
func (c *Cluster) Write(v uint64, data []byte, sync bool) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkErrored(); err != nil {
		return StatusOK, err
	}

	deviceID, pbid, err := c.as.allocate(v)
	if err != nil {
		return StatusOK, err
	}
	dev, ok := c.as.device(deviceID)
	if !ok {
		return StatusOK, ErrUnmappableAddress
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	if c.cache == nil || sync {
		if err := dev.PutBlock(pbid, payload); err != nil {
			c.metrics.RecordDeviceError(strconv.FormatUint(uint64(deviceID), 10))
			return StatusOK, c.fail(err)
		}
		if c.cache == nil {
			c.metrics.RecordBlockOp("write", "ok")
			return StatusOK, nil
		}
	}

	status := StatusOK
	if _, hit := c.cache.Get(v); hit {
		status = StatusCacheHit
	}

	blk := &PhysicalBlock{VirtualBlockID: v, DeviceID: deviceID, PhysicalBlockID: pbid, Data: payload, Dirty: !sync}
	if err := c.cache.Add(v, blk); err != nil {
		return status, c.fail(err)
	}

	if status == StatusCacheHit {
		c.metrics.RecordBlockOp("write", "cache_hit")
	} else {
		c.metrics.RecordBlockOp("write", "ok")
	}
	return status, nil
}

// ReadBlocks performs a bulk read of the given virtual blocks, bypassing
// the cache and partitioning the request by owning device.
func (c *Cluster) ReadBlocks(vs []uint64) (map[uint64][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkErrored(); err != nil {
		return nil, err
	}

	byDevice, pbidToV, err := c.partition(vs)
	if err != nil {
		return nil, err
	}

	out := make(map[uint64][]byte, len(vs))
	for deviceID, pbids := range byDevice {
		dev, ok := c.as.device(deviceID)
		if !ok {
			return nil, ErrUnmappableAddress
		}
		blocks, err := dev.GetBlocks(pbids)
		if err != nil {
			c.metrics.RecordDeviceError(strconv.FormatUint(uint64(deviceID), 10))
			return nil, c.fail(err)
		}
		for _, b := range blocks {
			v := pbidToV[deviceKey{deviceID, b.ID}]
			out[v] = b.Data
		}
	}
	return out, nil
}

// WriteBlocks performs a bulk write of the given virtual-block-id to data
// mapping, bypassing the cache and partitioning the request by owning
// device.
func (c *Cluster) WriteBlocks(blocks map[uint64][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkErrored(); err != nil {
		return err
	}

	byDeviceBlocks := make(map[uint32][]device.IDBlock)
	for v, data := range blocks {
		deviceID, pbid, err := c.as.allocate(v)
		if err != nil {
			return err
		}
		byDeviceBlocks[deviceID] = append(byDeviceBlocks[deviceID], device.IDBlock{ID: pbid, Data: data})
	}

	for deviceID, idBlocks := range byDeviceBlocks {
		dev, ok := c.as.device(deviceID)
		if !ok {
			return ErrUnmappableAddress
		}
		if _, err := dev.PutBlocks(idBlocks); err != nil {
			c.metrics.RecordDeviceError(strconv.FormatUint(uint64(deviceID), 10))
			return c.fail(err)
		}
	}
	return nil
}

type deviceKey struct {
	deviceID uint32
	pbid     uint64
}

// partition resolves each virtual-block-id and groups the resulting
// physical-block-ids by owning device, for bulk reads.
func (c *Cluster) partition(vs []uint64) (byDevice map[uint32][]uint64, pbidToV map[deviceKey]uint64, err error) {
	byDevice = make(map[uint32][]uint64)
	pbidToV = make(map[deviceKey]uint64, len(vs))
	for _, v := range vs {
		deviceID, pbid, err := c.as.lookup(v)
		if err != nil {
			return nil, nil, err
		}
		byDevice[deviceID] = append(byDevice[deviceID], pbid)
		pbidToV[deviceKey{deviceID, pbid}] = v
	}
	return byDevice, pbidToV, nil
}
