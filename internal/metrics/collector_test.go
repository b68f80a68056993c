package metrics

import (
	"sync"
	"testing"
	"time"
)

type mockStatsProvider struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestNewCollector(t *testing.T) {
	provider := &mockStatsProvider{}
	collector := NewCollector(provider, 5*time.Second)

	if collector == nil {
		t.Fatal("NewCollector returned nil")
	}
	if collector.interval != 5*time.Second {
		t.Errorf("expected interval 5s, got %v", collector.interval)
	}
	if collector.stopChan == nil {
		t.Error("stopChan should be initialized")
	}
}

func TestCollectorCollectsImmediately(t *testing.T) {
	provider := &mockStatsProvider{
		stats: Stats{
			ActiveSessions:    3,
			PreloadLoops:      2,
			SegmentCacheBytes: 4096,
			SegmentCacheFiles: 12,
		},
	}

	collector := NewCollector(provider, time.Hour)
	collector.Start()
	defer collector.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for provider.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("collector never queried the stats provider")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCollectorPollsOnInterval(t *testing.T) {
	provider := &mockStatsProvider{}

	collector := NewCollector(provider, 20*time.Millisecond)
	collector.Start()
	time.Sleep(150 * time.Millisecond)
	collector.Stop()

	if n := provider.callCount(); n < 2 {
		t.Errorf("expected at least 2 collections, got %d", n)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	collector := NewCollector(nil, time.Hour)

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("collect panicked with nil provider: %v", r)
		}
	}()
	collector.collect()
}
