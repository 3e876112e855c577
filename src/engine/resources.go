package engine

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resources is a snapshot of host resource usage taken at the end of a run,
// surfaced so callers can decide whether to back off parallelism on a
// subsequent invocation (spec.md 5, "Parallelism").
type Resources struct {
	CPUCount          int
	MemoryUsedPercent float64
}

// SampleResources reads the current CPU count and memory usage. Errors from
// gopsutil are logged and leave the corresponding field at its zero value;
// a failed sample should never fail a build.
func SampleResources() Resources {
	var r Resources
	if count, err := cpu.Counts(true); err != nil {
		log.Warningf("failed to read CPU count: %s", err)
	} else {
		r.CPUCount = count
	}
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warningf("failed to read memory usage: %s", err)
	} else {
		r.MemoryUsedPercent = vm.UsedPercent
	}
	return r
}
