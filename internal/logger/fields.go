package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the channel, device,
// cluster, and client-cache layers. Use these keys consistently so log lines
// can be aggregated and queried.
const (
	// Tracing / correlation
	KeyTraceID = "trace_id"
	KeySession = "session" // security association identity

	// Channel / transport
	KeyPeerAddr  = "peer_addr"
	KeySeq       = "seq"
	KeyFrameSize = "frame_size"

	// Device protocol
	KeyDeviceID    = "device_id"
	KeyCommand     = "command"
	KeyPhysicalID  = "physical_block_id"
	KeyNumBlocks   = "num_blocks"
	KeyAckFlag     = "ack"

	// Block cluster
	KeyVirtualID  = "virtual_block_id"
	KeyCacheHit   = "cache_hit"
	KeyDiscipline = "allocation_discipline"

	// Client cache
	KeyHandle      = "handle"
	KeyChunkIndex  = "chunk_index"
	KeyDirtyChunks = "dirty_chunks"
	KeyOffset      = "offset"
	KeySize        = "size"

	// Generic
	KeyError    = "error"
	KeyDuration = "duration_ms"
)

// Err returns a slog.Attr for an error value; a nil err yields an attr
// with an empty string value.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Session returns a slog.Attr identifying a security association.
func Session(initiator, responder string) slog.Attr {
	return slog.String(KeySession, initiator+"/"+responder)
}

// Seq returns a slog.Attr for a frame sequence number.
func Seq(n uint32) slog.Attr {
	return slog.Uint64(KeySeq, uint64(n))
}

// DeviceID returns a slog.Attr for a device identifier.
func DeviceID(id uint32) slog.Attr {
	return slog.Uint64(KeyDeviceID, uint64(id))
}

// VirtualBlock returns a slog.Attr for a virtual block id.
func VirtualBlock(id uint64) slog.Attr {
	return slog.Uint64(KeyVirtualID, id)
}
