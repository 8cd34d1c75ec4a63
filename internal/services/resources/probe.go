package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostReading is one sample of host capacity.
type HostReading struct {
	MemTotal     uint64
	MemAvailable uint64
	MemUsedPct   float64
	CPUPercent   float64
	LogicalCPUs  int
	ObservedAt   time.Time
}

// HostProbe reads host memory and CPU.
type HostProbe interface {
	Read(ctx context.Context) (HostReading, error)
}

// GopsutilProbe reads the local host through gopsutil.
type GopsutilProbe struct {
	// CPUSample is the window CPU usage is measured over; 0 compares against the previous call.
	CPUSample time.Duration
}

func (p GopsutilProbe) Read(ctx context.Context) (HostReading, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostReading{}, fmt.Errorf("read memory: %w", err)
	}
	pct, err := cpu.PercentWithContext(ctx, p.CPUSample, false)
	if err != nil {
		return HostReading{}, fmt.Errorf("read cpu: %w", err)
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n <= 0 {
		n = 1
	}

	r := HostReading{
		MemTotal:     vm.Total,
		MemAvailable: vm.Available,
		MemUsedPct:   vm.UsedPercent,
		LogicalCPUs:  n,
		ObservedAt:   time.Now(),
	}
	if len(pct) > 0 {
		r.CPUPercent = pct[0]
	}
	return r, nil
}
