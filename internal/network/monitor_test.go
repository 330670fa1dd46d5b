package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pos-sync-service/internal/config"
	"pos-sync-service/internal/model"
)

type fakeLink struct {
	mu    sync.Mutex
	state LinkState
}

func (f *fakeLink) Detect() LinkState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLink) set(state LinkState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func wiredLink() *fakeLink {
	return &fakeLink{state: LinkState{Up: true, Interface: "eth0", ConnectionType: model.ConnectionTypeEthernet}}
}

func testNetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{
		MaxRetries:       3,
		BaseProbeTimeout: 50 * time.Millisecond,
		ProbeTimeoutStep: 20 * time.Millisecond,
		MaxProbeTimeout:  150 * time.Millisecond,
		BaseBackoff:      time.Millisecond,
		MaxBackoff:       5 * time.Millisecond,
		SlowThreshold:    time.Second,
	}
}

func TestProbeTimeoutGrowsAndCaps(t *testing.T) {
	cfg := config.NetworkConfig{
		BaseProbeTimeout: 5 * time.Second,
		ProbeTimeoutStep: 2 * time.Second,
		MaxProbeTimeout:  15 * time.Second,
	}

	assert.Equal(t, 5*time.Second, ProbeTimeout(cfg, 0))
	assert.Equal(t, 7*time.Second, ProbeTimeout(cfg, 1))
	assert.Equal(t, 11*time.Second, ProbeTimeout(cfg, 3))
	assert.Equal(t, 15*time.Second, ProbeTimeout(cfg, 5))
	assert.Equal(t, 15*time.Second, ProbeTimeout(cfg, 50))
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := config.NetworkConfig{BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}

	assert.Equal(t, time.Second, Backoff(cfg, 0))
	assert.Equal(t, 2*time.Second, Backoff(cfg, 1))
	assert.Equal(t, 4*time.Second, Backoff(cfg, 2))
	assert.Equal(t, 8*time.Second, Backoff(cfg, 3))
	assert.Equal(t, 10*time.Second, Backoff(cfg, 4))
	assert.Equal(t, 10*time.Second, Backoff(cfg, 40))
}

func TestCheckNowOnline(t *testing.T) {
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return 20 * time.Millisecond, nil
	})
	m := NewMonitor(testNetworkConfig(), checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	status := m.CheckNow(context.Background())

	assert.True(t, status.IsOnline)
	assert.False(t, status.IsSlowConnection)
	assert.False(t, status.IsCheckingConnection)
	assert.Equal(t, model.ConnectionTypeEthernet, status.ConnectionType)
	assert.Equal(t, int64(20), status.PingLatencyMs)
	assert.Equal(t, 0, status.RetryCount)
	assert.Equal(t, 3, status.MaxRetries)
	assert.NotNil(t, status.LastOnlineTime)
	assert.NotNil(t, status.LastPingTime)
	assert.Equal(t, status, m.Status())
}

func TestCheckNowRetriesThenGivesUp(t *testing.T) {
	var (
		calls    int32
		mu       sync.Mutex
		timeouts []time.Duration
	)
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		mu.Lock()
		timeouts = append(timeouts, timeout)
		mu.Unlock()
		return 0, errors.New("connection refused")
	})
	cfg := testNetworkConfig()
	m := NewMonitor(cfg, checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	status := m.CheckNow(context.Background())

	assert.False(t, status.IsOnline)
	assert.False(t, status.IsCheckingConnection)
	assert.Equal(t, 3, status.RetryCount)
	// one initial probe plus max_retries retries, never more
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,
		70 * time.Millisecond,
		90 * time.Millisecond,
		110 * time.Millisecond,
	}, timeouts)
}

func TestCheckNowRecoversAfterRetry(t *testing.T) {
	var calls int32
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return 0, errors.New("timeout")
		}
		return 5 * time.Millisecond, nil
	})
	m := NewMonitor(testNetworkConfig(), checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	status := m.CheckNow(context.Background())

	assert.True(t, status.IsOnline)
	assert.Equal(t, 0, status.RetryCount)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCheckNowWithoutLinkSkipsProbe(t *testing.T) {
	var calls int32
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return time.Millisecond, nil
	})
	link := &fakeLink{state: LinkState{ConnectionType: model.ConnectionTypeNone}}
	m := NewMonitor(testNetworkConfig(), checker, link, zap.NewNop())
	defer m.Stop()

	status := m.CheckNow(context.Background())

	assert.False(t, status.IsOnline)
	assert.Equal(t, model.ConnectionTypeNone, status.ConnectionType)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSlowConnection(t *testing.T) {
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return 1500 * time.Millisecond, nil
	})
	cfg := testNetworkConfig()
	cfg.SlowThreshold = 1500 * time.Millisecond
	m := NewMonitor(cfg, checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	status := m.CheckNow(context.Background())

	assert.True(t, status.IsOnline)
	assert.True(t, status.IsSlowConnection)
}

func TestTransitionsStampTimes(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		if healthy.Load() {
			return time.Millisecond, nil
		}
		return 0, errors.New("down")
	})
	m := NewMonitor(testNetworkConfig(), checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	var transitions []bool
	var mu sync.Mutex
	last := false
	m.OnChange(func(s model.NetworkStatus) {
		mu.Lock()
		defer mu.Unlock()
		if s.IsOnline != last {
			transitions = append(transitions, s.IsOnline)
			last = s.IsOnline
		}
	})

	online := m.CheckNow(context.Background())
	require.NotNil(t, online.LastOnlineTime)
	assert.Nil(t, online.LastOfflineTime)

	healthy.Store(false)
	offline := m.CheckNow(context.Background())
	assert.False(t, offline.IsOnline)
	require.NotNil(t, offline.LastOfflineTime)
	assert.Equal(t, online.LastOnlineTime, offline.LastOnlineTime)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestConcurrentCheckNowJoinsOneCycle(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return time.Millisecond, nil
	})
	m := NewMonitor(testNetworkConfig(), checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	var wg sync.WaitGroup
	results := make([]model.NetworkStatus, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.CheckNow(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.True(t, r.IsOnline)
	}
}

func TestLinkChangeTriggersProbe(t *testing.T) {
	var calls int32
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return time.Millisecond, nil
	})
	link := &fakeLink{state: LinkState{ConnectionType: model.ConnectionTypeNone}}
	cfg := testNetworkConfig()
	cfg.LinkCheckInterval = 5 * time.Millisecond
	m := NewMonitor(cfg, checker, link, zap.NewNop())

	m.Start()
	defer m.Stop()

	// no link: the startup cycle must not probe
	require.Eventually(t, func() bool {
		return m.Status().ConnectionType == model.ConnectionTypeNone
	}, time.Second, time.Millisecond)
	assert.False(t, m.Status().IsOnline)

	link.set(LinkState{Up: true, Interface: "wlan0", ConnectionType: model.ConnectionTypeWiFi})

	require.Eventually(t, func() bool { return m.Status().IsOnline }, time.Second, time.Millisecond)
	assert.Equal(t, model.ConnectionTypeWiFi, m.Status().ConnectionType)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestNotifyVisibleTriggersProbe(t *testing.T) {
	var calls int32
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		atomic.AddInt32(&calls, 1)
		return time.Millisecond, nil
	})
	m := NewMonitor(testNetworkConfig(), checker, wiredLink(), zap.NewNop())
	defer m.Stop()

	m.NotifyVisible(false)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	m.NotifyVisible(true)
	require.Eventually(t, func() bool { return m.Status().IsOnline }, time.Second, time.Millisecond)
}

func TestStopCancelsBackoff(t *testing.T) {
	checker := HealthCheckFunc(func(ctx context.Context, timeout time.Duration) (time.Duration, error) {
		return 0, errors.New("down")
	})
	cfg := testNetworkConfig()
	cfg.BaseBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	m := NewMonitor(cfg, checker, wiredLink(), zap.NewNop())
	m.Start()

	require.Eventually(t, func() bool { return m.Status().RetryCount == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt the backoff wait")
	}
}

func TestClassifyInterface(t *testing.T) {
	assert.Equal(t, model.ConnectionTypeEthernet, ClassifyInterface("eth0"))
	assert.Equal(t, model.ConnectionTypeEthernet, ClassifyInterface("enp3s0"))
	assert.Equal(t, model.ConnectionTypeWiFi, ClassifyInterface("wlan0"))
	assert.Equal(t, model.ConnectionTypeWiFi, ClassifyInterface("wlp2s0"))
	assert.Equal(t, model.ConnectionTypeCellular, ClassifyInterface("wwan0"))
	assert.Equal(t, model.ConnectionTypeCellular, ClassifyInterface("ppp0"))
	assert.Equal(t, model.ConnectionTypeUnknown, ClassifyInterface("tun0"))
}
