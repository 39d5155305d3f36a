package telemetry

import (
	"time"

	"github.com/vecsum/vecsum/pkg/stats"
)

// RunEvent records one completed benchmark run.
type RunEvent struct {
	RunID      string               `json:"run_id"`
	Timestamp  time.Time            `json:"ts"`
	NodeHost   string               `json:"node"`
	Strategy   string               `json:"strategy"`
	Endpoint   string               `json:"endpoint,omitempty"`
	Path       string               `json:"path"`
	FileBytes  int64                `json:"file_bytes"`
	TotalBytes int64                `json:"total_bytes"`
	ElapsedSec float64              `json:"elapsed_sec"`
	CPUSec     float64              `json:"cpu_sec"`
	GiBPerSec  float64              `json:"gib_per_sec"`
	Stats      stats.ReadStatistics `json:"stats"`
	Passes     []PassEvent          `json:"passes"`
	Error      string               `json:"error,omitempty"`
}

// PassEvent records one pass of a run.
type PassEvent struct {
	Index int                  `json:"index"`
	Sum   float64              `json:"sum"`
	Bytes int64                `json:"bytes"`
	Stats stats.ReadStatistics `json:"stats"`
}
