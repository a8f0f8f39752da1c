// Package pool provides object pools for reducing GC pressure on hot paths.
// No other vecdb package imports it at present.
//
// Usage:
//
//	buf := pool.GetFloat32Slice()
//	defer pool.PutFloat32Slice(buf)
package pool

import "sync"

// Config configures object pooling behavior.
type Config struct {
	Enabled bool
	MaxSize int
}

var globalConfig = Config{
	Enabled: true,
	MaxSize: 1000,
}

// Configure sets global pool configuration. Call early during startup.
func Configure(cfg Config) {
	globalConfig = cfg
	initPools()
}

// IsEnabled returns whether pooling is active.
func IsEnabled() bool {
	return globalConfig.Enabled
}

func initPools() {
	float32SlicePool = sync.Pool{New: func() any { return make([]float32, 0, 256) }}
	byteBufferPool = sync.Pool{New: func() any { return make([]byte, 0, 4096) }}
	payloadMapPool = sync.Pool{New: func() any { return make(map[string]interface{}, 8) }}
	stringSlicePool = sync.Pool{New: func() any { return make([]string, 0, 16) }}
}

// =============================================================================
// Float32 Slice Pool (vector arena scratch buffers, search result accumulation)
// =============================================================================

var float32SlicePool = sync.Pool{
	New: func() any { return make([]float32, 0, 256) },
}

// GetFloat32Slice returns a zero-length float32 slice from the pool.
func GetFloat32Slice() []float32 {
	if !globalConfig.Enabled {
		return make([]float32, 0, 256)
	}
	return float32SlicePool.Get().([]float32)[:0]
}

// PutFloat32Slice returns a float32 slice to the pool.
func PutFloat32Slice(s []float32) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	float32SlicePool.Put(s[:0])
}

// =============================================================================
// Byte Buffer Pool (snapshot/WAL record encoding)
// =============================================================================

var byteBufferPool = sync.Pool{
	New: func() any { return make([]byte, 0, 4096) },
}

// GetByteBuffer returns a byte buffer from the pool.
func GetByteBuffer() []byte {
	if !globalConfig.Enabled {
		return make([]byte, 0, 4096)
	}
	return byteBufferPool.Get().([]byte)[:0]
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(buf []byte) {
	if !globalConfig.Enabled {
		return
	}
	if cap(buf) > 4*1024*1024 { // don't pool buffers over 4MB
		return
	}
	byteBufferPool.Put(buf[:0])
}

// =============================================================================
// Payload Map Pool (point payload scratch during upsert/filter evaluation)
// =============================================================================

var payloadMapPool = sync.Pool{
	New: func() any { return make(map[string]interface{}, 8) },
}

// GetPayloadMap returns a cleared map from the pool.
func GetPayloadMap() map[string]interface{} {
	if !globalConfig.Enabled {
		return make(map[string]interface{}, 8)
	}
	m := payloadMapPool.Get().(map[string]interface{})
	for k := range m {
		delete(m, k)
	}
	return m
}

// PutPayloadMap returns a map to the pool.
func PutPayloadMap(m map[string]interface{}) {
	if !globalConfig.Enabled || m == nil {
		return
	}
	if len(m) > globalConfig.MaxSize {
		return
	}
	for k := range m {
		delete(m, k)
	}
	payloadMapPool.Put(m)
}

// =============================================================================
// String Slice Pool (payload index key collection, BM25 token buffers)
// =============================================================================

var stringSlicePool = sync.Pool{
	New: func() any { return make([]string, 0, 16) },
}

// GetStringSlice returns a zero-length string slice from the pool.
func GetStringSlice() []string {
	if !globalConfig.Enabled {
		return make([]string, 0, 16)
	}
	return stringSlicePool.Get().([]string)[:0]
}

// PutStringSlice returns a string slice to the pool.
func PutStringSlice(s []string) {
	if !globalConfig.Enabled {
		return
	}
	if cap(s) > globalConfig.MaxSize {
		return
	}
	stringSlicePool.Put(s[:0])
}
