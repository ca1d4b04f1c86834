package sysinfo

import (
	"strings"
	"testing"
)

func TestRecommendedWorkers(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want int
	}{
		{"small board", Info{Arch: "arm64", CPUs: 4, MemoryBytes: 2 * gib}, 2},
		{"small single core", Info{Arch: "amd64", CPUs: 1, MemoryBytes: 2 * gib}, 1},
		{"mid tier", Info{Arch: "amd64", CPUs: 8, MemoryBytes: 6 * gib}, 4},
		{"mid tier few cpus", Info{Arch: "amd64", CPUs: 3, MemoryBytes: 6 * gib}, 3},
		{"large", Info{Arch: "amd64", CPUs: 16, MemoryBytes: 32 * gib}, 8},
		{"large few cpus", Info{Arch: "arm64", CPUs: 6, MemoryBytes: 16 * gib}, 6},
		{"unknown memory", Info{Arch: "amd64", CPUs: 16}, 2},
		{"32-bit arm", Info{Arch: "arm", CPUs: 4, MemoryBytes: 16 * gib}, 2},
		{"zero cpus", Info{Arch: "amd64", MemoryBytes: 16 * gib}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecommendedWorkers(tt.info); got != tt.want {
				t.Errorf("RecommendedWorkers(%+v) = %d, want %d", tt.info, got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	info := Detect()
	if info.CPUs < 1 {
		t.Errorf("CPUs = %d, want >= 1", info.CPUs)
	}
	if info.OS == "" || info.Arch == "" {
		t.Errorf("OS/Arch not set: %+v", info)
	}
	if w := RecommendedWorkers(info); w < 1 || w > 8 {
		t.Errorf("RecommendedWorkers = %d, want 1..8", w)
	}
	if !strings.Contains(info.String(), "CPU(s)") {
		t.Errorf("String() = %q", info.String())
	}
}

func TestInfo_String(t *testing.T) {
	got := Info{OS: "linux", Arch: "arm64", CPUs: 4, MemoryBytes: 4 * gib}.String()
	if got != "linux/arm64, 4 CPU(s), 4.0 GiB" {
		t.Errorf("String() = %q", got)
	}
}
