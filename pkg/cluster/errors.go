package cluster

import "errors"

// ErrUnmappableAddress is raised when a virtual-block-id falls outside the
// cluster's configured address space.
var ErrUnmappableAddress = errors.New("cluster: unmappable address")

// ErrUnknownDiscipline is raised at cluster construction when the
// configured allocation discipline is not recognized.
var ErrUnknownDiscipline = errors.New("cluster: unknown allocation discipline")

// ErrCacheFlush is raised when a dirty block could not be written back to
// its owning device on eviction. The cluster becomes errored and refuses
// further admission.
var ErrCacheFlush = errors.New("cluster: cache flush failed")

// ErrErrored is returned by Read/Write once the cluster has entered the
// errored state after a failed eviction flush or device I/O error; the
// returned error also wraps the failure that caused that state.
var ErrErrored = errors.New("cluster: errored")
