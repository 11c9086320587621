package metrics

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// AvailableRAMGB returns the memory the OS can hand out without swapping
func AvailableRAMGB() (float64, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return float64(vmem.Available) / bytesPerGB, nil
}

// TotalRAMGB returns installed physical memory
func TotalRAMGB() (float64, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return float64(vmem.Total) / bytesPerGB, nil
}
