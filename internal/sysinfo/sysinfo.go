// Package sysinfo detects the host resources used to size the worker pool.
package sysinfo

import (
	"fmt"
	"runtime"

	"github.com/dustin/go-humanize"
)

const gib = 1 << 30

// Info describes the host.
type Info struct {
	OS   string
	Arch string
	CPUs int
	// MemoryBytes is total physical memory, or zero when it could not be
	// determined.
	MemoryBytes uint64
}

// Detect inspects the running host.
func Detect() Info {
	return Info{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		CPUs:        runtime.NumCPU(),
		MemoryBytes: totalMemory(),
	}
}

func (i Info) String() string {
	mem := "unknown memory"
	if i.MemoryBytes > 0 {
		mem = humanize.IBytes(i.MemoryBytes)
	}
	return fmt.Sprintf("%s/%s, %d CPU(s), %s", i.OS, i.Arch, i.CPUs, mem)
}

// RecommendedWorkers returns the worker pool size for a host. Machines
// with little memory get fewer workers than they have CPUs:
//
//	< 4 GiB   min(2, cpus)
//	< 8 GiB   min(4, cpus)
//	otherwise min(8, cpus)
//
// 32-bit ARM hosts and hosts whose memory is unknown are treated as the
// smallest tier.
func RecommendedWorkers(i Info) int {
	cpus := max(i.CPUs, 1)
	switch {
	case i.MemoryBytes == 0 || i.Arch == "arm":
		return min(2, cpus)
	case i.MemoryBytes < 4*gib:
		return min(2, cpus)
	case i.MemoryBytes < 8*gib:
		return min(4, cpus)
	default:
		return min(8, cpus)
	}
}
