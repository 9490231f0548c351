package crawlers

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/RecoveryAshes/WikiCrawler/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 周期性采样内存和CPU,为工作池宽度和进度日志提供依据
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 系统总内存(字节)
	totalMemory uint64

	mu           sync.RWMutex
	lastMemStats runtime.MemStats
	lastCPUUsage float64

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 系统预留内存(字节)
	WorkerMemoryUsage   int64 // 单个工作协程的预估内存(字节)
	MaxWorkersLimit     int   // 工作协程绝对上限

	// CPULoadThreshold CPU使用率(%)超过该值时工作池宽度减半
	CPULoadThreshold float64
}

// 内存压力等级
const (
	PressureNormal    = "normal"
	PressureWarning   = "warning"   // 可用内存低于500MB,宽度减半
	PressureEmergency = "emergency" // 可用内存低于200MB,只保留一个工作协程
)

// MemoryStatus 内存状态
type MemoryStatus struct {
	TotalMemory     uint64  `json:"total_memory"`
	AllocatedMemory uint64  `json:"allocated_memory"`
	SysMemory       uint64  `json:"sys_memory"`
	AvailableMemory int64   `json:"available_memory"`
	CPUUsage        float64 `json:"cpu_usage"`
	Goroutines      int     `json:"goroutines"`
	MemoryPressure  string  `json:"memory_pressure"`
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.WorkerMemoryUsage <= 0 {
		config.WorkerMemoryUsage = 32 * 1024 * 1024
	}
	if config.MaxWorkersLimit <= 0 {
		config.MaxWorkersLimit = 100
	}
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = 90
	}

	var totalMem uint64
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,使用默认值4GB")
		totalMem = 4 * 1024 * 1024 * 1024
	} else {
		totalMem = vmStat.Total
		log.Debug().Msgf("系统总内存: %.2f GB", float64(totalMem)/(1024*1024*1024))
	}

	rm := &ResourceMonitor{
		config:      config,
		totalMemory: totalMem,
	}
	runtime.ReadMemStats(&rm.lastMemStats)

	return rm
}

// StartMonitoring 启动后台采样,重复调用无副作用
// 返回前先同步采样一次,使随后的CalculateMaxWorkers有CPU数据可用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.RLock()
	running := rm.cancelFunc != nil
	rm.mu.RUnlock()
	if running {
		return
	}
	rm.sample()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.cancelFunc != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.done = make(chan struct{})

	go rm.monitoringLoop(ctx, interval, rm.done)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.sample()
		}
	}
}

// sample 采样一次内存和CPU
func (rm *ResourceMonitor) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cpuUsage := 0.0
	// perCPU=false 返回所有核心的平均值
	if percentages, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		log.Debug().Err(err).Msg("获取CPU使用率失败")
	} else if len(percentages) > 0 {
		cpuUsage = percentages[0]
	}

	rm.mu.Lock()
	rm.lastMemStats = memStats
	rm.lastCPUUsage = cpuUsage
	rm.mu.Unlock()
}

// StopMonitoring 停止后台采样并等待采样协程退出
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	cancel, done := rm.cancelFunc, rm.done
	rm.cancelFunc, rm.done = nil, nil
	rm.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// CalculateMaxWorkers 根据可用内存、内存压力、CPU负载和核数限制工作池宽度
// 结果不超过requested,且至少为1
func (rm *ResourceMonitor) CalculateMaxWorkers(requested int) int {
	status := rm.GetMemoryStatus()

	result := requested
	if byMemory := int(status.AvailableMemory / rm.config.WorkerMemoryUsage); byMemory < result {
		result = byMemory
	}
	// 网络密集型任务,允许超过核数
	if byCPU := runtime.NumCPU() * 8; byCPU < result {
		result = byCPU
	}
	if rm.config.MaxWorkersLimit < result {
		result = rm.config.MaxWorkersLimit
	}

	switch status.MemoryPressure {
	case PressureEmergency:
		result = 1
	case PressureWarning:
		result /= 2
	}
	if status.CPUUsage > rm.config.CPULoadThreshold {
		result /= 2
	}

	if result < 1 {
		result = 1
	}

	if result < requested {
		log.Warn().
			Str("pressure", status.MemoryPressure).
			Float64("cpu", status.CPUUsage).
			Str("available", utils.FormatBytes(uint64(max(status.AvailableMemory, 0)))).
			Str("total", utils.FormatBytes(status.TotalMemory)).
			Msgf("资源受限,工作协程数从%d调整为%d", requested, result)
	}
	return result
}

// GetMemoryStatus 返回最近一次采样的资源状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	memStats := rm.lastMemStats
	cpuUsage := rm.lastCPUUsage
	rm.mu.RUnlock()

	available := int64(rm.totalMemory) - int64(memStats.Sys) - rm.config.SafetyReserveMemory

	pressure := PressureNormal
	switch availableMB := available / (1024 * 1024); {
	case availableMB < 200:
		pressure = PressureEmergency
	case availableMB < 500:
		pressure = PressureWarning
	}

	return MemoryStatus{
		TotalMemory:     rm.totalMemory,
		AllocatedMemory: memStats.Alloc,
		SysMemory:       memStats.Sys,
		AvailableMemory: available,
		CPUUsage:        cpuUsage,
		Goroutines:      runtime.NumGoroutine(),
		MemoryPressure:  pressure,
	}
}
