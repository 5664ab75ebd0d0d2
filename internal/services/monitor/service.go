package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
)

// Service samples system memory in the background and keeps the latest
// reading for the status endpoint. It observes only; nothing is coupled
// to the reading.
type Service struct {
	config *common.Config
	logger arbor.ILogger

	mu    sync.RWMutex
	stats interfaces.MemoryStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the monitor.
func New(config *common.Config, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the sampling loop.
func (s *Service) Start() {
	s.sample()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.config.SampleInterval())
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()

	s.logger.Info().
		Float64("max_memory_percent", s.config.Monitor.MaxMemoryPercent).
		Str("sample_interval", s.config.Monitor.SampleInterval).
		Msg("Memory monitor started")
}

// Stats returns the latest sample.
func (s *Service) Stats() interfaces.MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Close stops the sampling loop.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Service) sample() {
	vm, err := mem.VirtualMemoryWithContext(s.ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Memory sample failed")
		return
	}

	stats := interfaces.MemoryStats{
		UsedPercent: vm.UsedPercent,
		TotalBytes:  vm.Total,
		UsedBytes:   vm.Used,
		OverLimit:   vm.UsedPercent > s.config.Monitor.MaxMemoryPercent,
	}

	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()

	if stats.OverLimit {
		s.logger.Warn().
			Float64("used_percent", stats.UsedPercent).
			Float64("limit", s.config.Monitor.MaxMemoryPercent).
			Msg("Memory usage over configured limit")
	}
}
