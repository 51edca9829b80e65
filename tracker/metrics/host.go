package metrics

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/types"
)

// CollectHostInfo describes the machine the benchmarks ran on. Fields that
// cannot be read are left empty.
func CollectHostInfo(ctx context.Context, log logrus.FieldLogger) types.HostInfo {
	log = log.WithField("component", "host_info")
	info := types.HostInfo{OS: runtime.GOOS, LogicalCPUs: runtime.NumCPU()}

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		if h.PlatformVersion != "" {
			info.Platform += " " + h.PlatformVersion
		}
	} else {
		log.WithError(err).Debug("Failed to read host info")
		info.Hostname, _ = os.Hostname()
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	} else if err != nil {
		log.WithError(err).Debug("Failed to read cpu info")
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		info.LogicalCPUs = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory = vm.Total
	} else {
		log.WithError(err).Debug("Failed to read memory info")
	}

	return info
}
