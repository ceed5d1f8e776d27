package main

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// recommendedMemoryMB is the free memory below which a warning is printed
const recommendedMemoryMB = 800

// systemInfo describes the machine the renderer runs on
type systemInfo struct {
	CPUName     string
	LogicalCPUs int
	ClockGHz    float64
	TotalMB     uint64
	AvailableMB uint64
}

func getSystemInfo() (systemInfo, error) {
	cpuInfo, err := cpu.Info()
	if err != nil {
		return systemInfo{}, err
	}
	if len(cpuInfo) == 0 {
		return systemInfo{}, fmt.Errorf("no CPU information available")
	}
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return systemInfo{}, err
	}
	return systemInfo{
		CPUName:     cpuInfo[0].ModelName,
		LogicalCPUs: runtime.NumCPU(),
		ClockGHz:    cpuInfo[0].Mhz / 1000,
		TotalMB:     memInfo.Total / (1024 * 1024),
		AvailableMB: memInfo.Available / (1024 * 1024),
	}, nil
}

// systemCheck logs the environment and warns when memory is short
func systemCheck(logger core.Logger) {
	info, err := getSystemInfo()
	if err != nil {
		logger.Printf("Unable to read system information: %v\n", err)
		return
	}
	if info.AvailableMB < recommendedMemoryMB {
		logger.Printf("Available memory is below %d MB (found %d MB only)\n", recommendedMemoryMB, info.AvailableMB)
	}
	logger.Printf("Environment settings:\n")
	logger.Printf("  * CPU              : %s (%.2f GHz)\n", info.CPUName, info.ClockGHz)
	logger.Printf("  * Logical CPUs     : %d\n", info.LogicalCPUs)
	logger.Printf("  * Memory available : %d / %d MB\n", info.AvailableMB, info.TotalMB)
	logger.Printf("  * Operating system : %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
