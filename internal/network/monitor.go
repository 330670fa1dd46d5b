// internal/network/monitor.go
package network

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"pos-sync-service/internal/broadcast"
	"pos-sync-service/internal/config"
	"pos-sync-service/internal/model"
)

// NetworkProbe is the connectivity view the sync engine depends on
type NetworkProbe interface {
	CheckNow(ctx context.Context) model.NetworkStatus
	OnChange(listener broadcast.Listener[model.NetworkStatus]) func()
	Status() model.NetworkStatus
}

// HealthChecker performs one reachability probe against the back office
// and returns the observed latency.
type HealthChecker interface {
	Ping(ctx context.Context, timeout time.Duration) (time.Duration, error)
}

// HealthCheckFunc adapts a function to HealthChecker
type HealthCheckFunc func(ctx context.Context, timeout time.Duration) (time.Duration, error)

// Ping calls f
func (f HealthCheckFunc) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	return f(ctx, timeout)
}

// Monitor combines link state, UI visibility and active health probes into
// a continuously updated NetworkStatus.
type Monitor struct {
	config  config.NetworkConfig
	checker HealthChecker
	link    LinkDetector
	logger  *zap.Logger

	statuses *broadcast.Broadcaster[model.NetworkStatus]

	mutex    sync.RWMutex
	status   model.NetworkStatus
	lastLink LinkState

	cycles singleflight.Group

	lifeMu  sync.Mutex
	stopped bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor. Nothing runs until Start is called.
func NewMonitor(cfg config.NetworkConfig, checker HealthChecker, link LinkDetector, logger *zap.Logger) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(zap.String("component", "network_monitor"))

	return &Monitor{
		config:   cfg,
		checker:  checker,
		link:     link,
		logger:   logger,
		statuses: broadcast.New[model.NetworkStatus]("network_status", logger),
		status: model.NetworkStatus{
			ConnectionType: model.ConnectionTypeUnknown,
			MaxRetries:     cfg.MaxRetries,
		},
		runCtx: ctx,
		cancel: cancel,
	}
}

// Start runs an initial probe cycle and the background watchers
func (m *Monitor) Start() {
	m.logger.Info("Starting network monitor",
		zap.Int("max_retries", m.config.MaxRetries),
		zap.Duration("check_interval", m.config.CheckInterval),
		zap.Duration("link_check_interval", m.config.LinkCheckInterval),
	)

	m.lastLink = m.link.Detect()
	m.trigger("startup")

	if m.config.LinkCheckInterval > 0 {
		m.wg.Add(1)
		go m.watchLink()
	}
	if m.config.CheckInterval > 0 {
		m.wg.Add(1)
		go m.periodicCheck()
	}
}

// Stop cancels any probe cycle and waits for the watchers to exit
func (m *Monitor) Stop() {
	m.lifeMu.Lock()
	m.stopped = true
	m.lifeMu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("Network monitor stopped")
}

// Status returns the latest snapshot
func (m *Monitor) Status() model.NetworkStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.status
}

// OnChange registers a listener for every new snapshot
func (m *Monitor) OnChange(listener broadcast.Listener[model.NetworkStatus]) func() {
	return m.statuses.Subscribe(listener)
}

// Subscribe returns a bounded snapshot channel for slow consumers
func (m *Monitor) Subscribe(buffer int) (<-chan model.NetworkStatus, func()) {
	return m.statuses.SubscribeChan(buffer)
}

// CheckNow runs a probe cycle and returns the resulting status. A caller
// arriving while a cycle is running joins it instead of starting another.
func (m *Monitor) CheckNow(ctx context.Context) model.NetworkStatus {
	ch := m.cycles.DoChan("probe", func() (interface{}, error) {
		return m.runCycle(m.runCtx), nil
	})

	select {
	case res := <-ch:
		return res.Val.(model.NetworkStatus)
	case <-ctx.Done():
		return m.Status()
	}
}

// NotifyVisible tells the monitor the cashier UI became visible or hidden.
// Becoming visible triggers an immediate probe cycle.
func (m *Monitor) NotifyVisible(visible bool) {
	if !visible {
		return
	}
	m.logger.Debug("UI became visible, checking connectivity")
	m.trigger("visibility")
}

// ProbeTimeout returns the timeout for the given probe attempt
func ProbeTimeout(cfg config.NetworkConfig, attempt int) time.Duration {
	timeout := cfg.BaseProbeTimeout + time.Duration(attempt)*cfg.ProbeTimeoutStep
	if cfg.MaxProbeTimeout > 0 && timeout > cfg.MaxProbeTimeout {
		return cfg.MaxProbeTimeout
	}
	return timeout
}

// Backoff returns the delay before the retry that follows a failed attempt
func Backoff(cfg config.NetworkConfig, attempt int) time.Duration {
	delay := cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if cfg.MaxBackoff > 0 && delay >= cfg.MaxBackoff {
			return cfg.MaxBackoff
		}
	}
	if cfg.MaxBackoff > 0 && delay > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return delay
}

func (m *Monitor) runCycle(ctx context.Context) model.NetworkStatus {
	link := m.link.Detect()
	m.mutex.Lock()
	m.lastLink = link
	m.mutex.Unlock()

	if !link.Up {
		m.logger.Debug("No network link, skipping probe")
		return m.markOffline(link.ConnectionType, 0)
	}

	m.update(func(s *model.NetworkStatus) {
		s.IsCheckingConnection = true
		s.ConnectionType = link.ConnectionType
		s.RetryCount = 0
	})

	for attempt := 0; ; attempt++ {
		timeout := ProbeTimeout(m.config, attempt)
		latency, err := m.checker.Ping(ctx, timeout)
		if err == nil {
			return m.markOnline(link.ConnectionType, latency)
		}

		m.logger.Debug("Health probe failed",
			zap.Int("attempt", attempt),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)

		if attempt >= m.config.MaxRetries {
			m.logger.Warn("Back office unreachable, retries exhausted",
				zap.Int("retries", attempt),
				zap.Error(err),
			)
			return m.markOffline(link.ConnectionType, attempt)
		}

		delay := Backoff(m.config, attempt)
		m.update(func(s *model.NetworkStatus) {
			s.RetryCount = attempt + 1
		})

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return m.update(func(s *model.NetworkStatus) {
				s.IsCheckingConnection = false
			})
		}
	}
}

func (m *Monitor) markOnline(connType model.ConnectionType, latency time.Duration) model.NetworkStatus {
	now := time.Now().UTC()
	return m.update(func(s *model.NetworkStatus) {
		if !s.IsOnline {
			s.LastOnlineTime = &now
			m.logger.Info("Back office reachable",
				zap.Duration("latency", latency),
				zap.String("connection_type", string(connType)),
			)
		}
		s.IsOnline = true
		s.IsCheckingConnection = false
		s.ConnectionType = connType
		s.LastPingTime = &now
		s.PingLatencyMs = latency.Milliseconds()
		s.IsSlowConnection = m.config.SlowThreshold > 0 && latency >= m.config.SlowThreshold
		s.RetryCount = 0
	})
}

func (m *Monitor) markOffline(connType model.ConnectionType, retries int) model.NetworkStatus {
	now := time.Now().UTC()
	return m.update(func(s *model.NetworkStatus) {
		if s.IsOnline {
			s.LastOfflineTime = &now
			m.logger.Warn("Back office unreachable, switching to offline mode",
				zap.String("connection_type", string(connType)),
			)
		}
		s.IsOnline = false
		s.IsCheckingConnection = false
		s.IsSlowConnection = false
		s.ConnectionType = connType
		s.RetryCount = retries
	})
}

// update applies fn to a copy of the status, stores it and publishes the new
// snapshot when it differs from the previous one.
func (m *Monitor) update(fn func(s *model.NetworkStatus)) model.NetworkStatus {
	m.mutex.Lock()
	prev := m.status
	next := prev
	fn(&next)
	next.MaxRetries = m.config.MaxRetries
	m.status = next
	if !sameStatus(prev, next) {
		m.statuses.Enqueue(next)
	}
	m.mutex.Unlock()

	m.statuses.Flush()
	return next
}

func (m *Monitor) trigger(reason string) {
	m.lifeMu.Lock()
	if m.stopped {
		m.lifeMu.Unlock()
		return
	}
	m.wg.Add(1)
	m.lifeMu.Unlock()

	go func() {
		defer m.wg.Done()
		status := m.CheckNow(m.runCtx)
		m.logger.Debug("Probe cycle finished",
			zap.String("reason", reason),
			zap.Bool("online", status.IsOnline),
		)
	}()
}

func (m *Monitor) watchLink() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.LinkCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.runCtx.Done():
			return
		case <-ticker.C:
			link := m.link.Detect()

			m.mutex.Lock()
			changed := link.Up != m.lastLink.Up || link.ConnectionType != m.lastLink.ConnectionType
			m.lastLink = link
			m.mutex.Unlock()

			if changed {
				m.logger.Info("Network link changed",
					zap.Bool("up", link.Up),
					zap.String("interface", link.Interface),
					zap.String("connection_type", string(link.ConnectionType)),
				)
				m.trigger("link_change")
			}
		}
	}
}

func (m *Monitor) periodicCheck() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.runCtx.Done():
			return
		case <-ticker.C:
			m.mutex.RLock()
			up := m.lastLink.Up
			m.mutex.RUnlock()
			if up {
				m.trigger("periodic")
			}
		}
	}
}

func sameStatus(a, b model.NetworkStatus) bool {
	return a.IsOnline == b.IsOnline &&
		a.IsSlowConnection == b.IsSlowConnection &&
		a.ConnectionType == b.ConnectionType &&
		a.IsCheckingConnection == b.IsCheckingConnection &&
		a.RetryCount == b.RetryCount &&
		a.PingLatencyMs == b.PingLatencyMs &&
		timeEqual(a.LastPingTime, b.LastPingTime)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
