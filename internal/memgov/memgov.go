// Package memgov samples resident memory and turns it into adaptive
// batch sizing and pause/abort thresholds for the market-data adapter,
// grounded on original_source/app/src/common/memory_monitor.py's
// get_memory_config() profile switch and reproduced with gopsutil
// instead of psutil.
package memgov

import (
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"
)

// Limits are the batch-size/concurrency knobs the market-data adapter
// consults. Field names and default values mirror original_source's
// conservative-vs-standard profile exactly (10/10/15/10 vs 25/25/25/25).
type Limits struct {
	MaxConcurrentFetch  int
	MaxConcurrentBatch  int
	DynamoDBBatchSize   int
	MarketDataBatchSize int
}

// Governor samples resident memory on demand and exposes pause/abort
// thresholds consulted by the market-data adapter before and between
// sub-batches.
type Governor struct {
	logger    *log.Logger
	proc      *process.Process
	pauseMB   float64
	abortMB   float64
	limits    Limits
}

// New creates a Governor. pauseMB/abortMB are the configured high-water
// and abort lines (defaulting to pause at 400MB, abort at 550MB on a
// 1GB instance). If the process handle cannot be obtained, CurrentMB
// reports 0 and the pause/abort checks never trigger — a
// degraded-but-safe default.
func New(pauseMB, abortMB float64, logger *log.Logger) *Governor {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Printf("[memgov] could not attach to own process for memory sampling: %v", err)
		proc = nil
	}
	return &Governor{
		logger:  logger,
		proc:    proc,
		pauseMB: pauseMB,
		abortMB: abortMB,
		limits:  memoryConfig(),
	}
}

// CurrentMB returns the process's current resident memory in megabytes.
func (g *Governor) CurrentMB() float64 {
	if g.proc == nil {
		return 0
	}
	info, err := g.proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return float64(info.RSS) / 1024 / 1024
}

// ConfiguredLimits returns the batch-size/concurrency profile selected at
// construction time.
func (g *Governor) ConfiguredLimits() Limits {
	return g.limits
}

// ShouldPauseFetch reports whether current memory has crossed the pause
// (high-water) threshold.
func (g *Governor) ShouldPauseFetch() bool {
	return g.pauseMB > 0 && g.CurrentMB() > g.pauseMB
}

// ShouldAbortFetch reports whether current memory has crossed the abort
// line, after which the caller must stop accumulating and return
// whatever it already has rather than failing the whole fetch.
func (g *Governor) ShouldAbortFetch() bool {
	return g.abortMB > 0 && g.CurrentMB() > g.abortMB
}

// ForceReclamation runs a GC pass and returns Go's memory to the OS,
// mirroring original_source's force_garbage_collection(): log before/after
// RSS and the amount freed.
func (g *Governor) ForceReclamation(context string) {
	before := g.CurrentMB()
	runtime.GC()
	debug.FreeOSMemory()
	after := g.CurrentMB()
	g.logger.Printf("[memgov] reclamation [%s]: %.1fMB -> %.1fMB (freed %.1fMB)", context, before, after, before-after)
}

// memoryConfig selects the conservative or standard profile from
// MEMORY_LIMIT_MB / DYNO_TYPE / HEROKU_DYNO_TYPE, preserving
// original_source's exact defaults and env-var override names.
func memoryConfig() Limits {
	isBasicDyno := envLower("DYNO_TYPE") == "basic" || envLower("HEROKU_DYNO_TYPE") == "basic"
	memoryLimitMB := envFloat("MEMORY_LIMIT_MB", 512)
	conservative := isBasicDyno || memoryLimitMB < 1024

	if conservative {
		return Limits{
			MaxConcurrentFetch:  envInt("MAX_CONCURRENT_FETCH", 10),
			MaxConcurrentBatch:  envInt("MAX_CONCURRENT_BATCH", 10),
			DynamoDBBatchSize:   envInt("DYNAMODB_BATCH_SIZE", 15),
			MarketDataBatchSize: envInt("MARKET_DATA_BATCH_SIZE", 10),
		}
	}
	return Limits{
		MaxConcurrentFetch:  envInt("MAX_CONCURRENT_FETCH", 25),
		MaxConcurrentBatch:  envInt("MAX_CONCURRENT_BATCH", 25),
		DynamoDBBatchSize:   envInt("DYNAMODB_BATCH_SIZE", 25),
		MarketDataBatchSize: envInt("MARKET_DATA_BATCH_SIZE", 25),
	}
}

func envLower(name string) string {
	v := os.Getenv(name)
	out := make([]byte, len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(name string, fallback float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
