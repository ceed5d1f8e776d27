package renderer

import "time"

// WorkerStats is what a single worker counted while rendering
type WorkerStats struct {
	TilesCompleted int   // Tiles rendered to completion
	Samples        int   // Scene evaluations
	Subdivisions   int   // Quads split by the contrast test
	Faults         int   // Tiles abandoned after a panic
	CacheHits      int64 // Shading cache hits
	CacheMisses    int64 // Shading cache misses
}

// AddCache folds a worker's shading cache counters into the stats
func (ws *WorkerStats) AddCache(cache *ShadingCache) {
	if cache == nil {
		return
	}
	ws.CacheHits += cache.Hits
	ws.CacheMisses += cache.Misses
}

// RenderStats contains statistics about one call to Render
type RenderStats struct {
	Tiles          int           // Tiles scheduled
	TilesCompleted int           // Tiles rendered to completion
	Samples        int           // Scene evaluations across all workers
	Subdivisions   int           // Adaptive subdivisions across all workers
	Faults         int           // Tiles lost to worker panics
	CacheHits      int64         // Shading cache hits
	CacheMisses    int64         // Shading cache misses
	Canceled       bool          // Render stopped before every tile was taken
	Elapsed        time.Duration // Wall time of the render
}

// Add accumulates one worker's counters
func (rs *RenderStats) Add(ws WorkerStats) {
	rs.TilesCompleted += ws.TilesCompleted
	rs.Samples += ws.Samples
	rs.Subdivisions += ws.Subdivisions
	rs.Faults += ws.Faults
	rs.CacheHits += ws.CacheHits
	rs.CacheMisses += ws.CacheMisses
}

// CacheHitRate is the fraction of shading cache lookups that hit
func (rs RenderStats) CacheHitRate() float64 {
	total := rs.CacheHits + rs.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(rs.CacheHits) / float64(total)
}

// collectStats hands each worker's stats to the scene and sums them
func collectStats(scene Scene, tiles int, workers []WorkerStats, start time.Time) RenderStats {
	stats := RenderStats{Tiles: tiles}
	for _, ws := range workers {
		scene.AccumulateStats(ws)
		stats.Add(ws)
	}
	stats.Canceled = stats.TilesCompleted+stats.Faults < tiles
	stats.Elapsed = time.Since(start)
	return stats
}
