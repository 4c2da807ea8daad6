// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sysinfo is the external system-info source referenced by
// section 4.7's "inspect": per-PID CPU% and RSS sampling, plus whole-host
// figures for the daemon status endpoint.
package sysinfo

import (
	"runtime"

	goprocess "github.com/shirou/gopsutil/v3/process"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is one point-in-time reading of a child process's resource use.
// A zero Sample (with Err set) is returned for a PID that no longer
// exists; callers treat this as "no data" rather than a fatal condition.
type Sample struct {
	CPUPercent float64
	MemMB      float64
	Err        error
}

// SampleProcess samples CPU% (gopsutil's CPUPercent on a freshly opened
// handle: the average over the process's lifetime, not a recent rate)
// and resident memory in MB for pid.
func SampleProcess(pid int) Sample {
	proc, err := goprocess.NewProcess(int32(pid))
	if err != nil {
		return Sample{Err: err}
	}
	cpuPct, err := proc.CPUPercent()
	if err != nil {
		return Sample{Err: err}
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Sample{Err: err}
	}
	return Sample{CPUPercent: cpuPct, MemMB: float64(memInfo.RSS) / (1024 * 1024)}
}

// Host is a whole-machine snapshot for the unauthenticated /status
// endpoint (section 6): OS name, CPU% and memory, sampled fresh on every
// call.
type Host struct {
	OS         string
	CPUPercent float64
	MemUsedMB  float64
	MemTotalMB float64
}

// SampleHost reads a coarse whole-host snapshot. Errors from either
// collector are swallowed into zero values: host info is advisory, never
// blocking on a degraded status response.
func SampleHost() Host {
	h := Host{OS: runtime.GOOS}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		h.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemUsedMB = float64(vm.Used) / (1024 * 1024)
		h.MemTotalMB = float64(vm.Total) / (1024 * 1024)
	}
	return h
}
