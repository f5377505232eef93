// Package resources reports this process's compute capacity so operators
// can correlate worker throughput with the hardware behind it, adapted
// from the teacher's executor capacity detection.
package resources

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"

	"taskforge/pkg/metrics"
)

// ReportCapacity records this process's CPU count and total memory as
// Prometheus gauges. Call once at worker startup.
func ReportCapacity() {
	metrics.WorkerCPUCount.Set(float64(runtime.NumCPU()))
	metrics.WorkerMemTotalMB.Set(float64(detectTotalMemoryMB()))
}

func detectTotalMemoryMB() uint64 {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 1024
	}
	return v.Total / 1024 / 1024
}
