package observability

import (
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Stats is the snapshot served on the health endpoint.
type Stats struct {
	EventsConsumed  uint64  `json:"events_consumed"`
	EventsMalformed uint64  `json:"events_malformed"`
	MessagesSent    uint64  `json:"messages_sent"`
	DeliveredLive   uint64  `json:"delivered_live"`
	StoredOffline   uint64  `json:"stored_offline"`
	PushFailures    uint64  `json:"push_failures"`
	ActiveConns     int64   `json:"active_connections"`
	RAMBytes        uint64  `json:"ram_bytes"`
	CPUPercent      float64 `json:"cpu_percent"`
}

// Monitor aggregates delivery counters. All counters are atomic; Monitor is
// shared by the router, the consumers and the gateway.
type Monitor struct {
	log  *slog.Logger
	self *process.Process

	eventsConsumed  atomic.Uint64
	eventsMalformed atomic.Uint64
	messagesSent    atomic.Uint64
	deliveredLive   atomic.Uint64
	storedOffline   atomic.Uint64
	pushFailures    atomic.Uint64
	activeConns     atomic.Int64

	started time.Time
}

func NewMonitor(log *slog.Logger) *Monitor {
	m := &Monitor{log: log, started: time.Now()}
	// Self stats are best effort; the monitor works without them.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		m.self = p
	} else {
		log.Warn("Process self-stats unavailable", "error", err)
	}
	return m
}

func (m *Monitor) IncrEventsConsumed()  { m.eventsConsumed.Add(1) }
func (m *Monitor) IncrEventsMalformed() { m.eventsMalformed.Add(1) }
func (m *Monitor) IncrMessagesSent()    { m.messagesSent.Add(1) }
func (m *Monitor) IncrDeliveredLive()   { m.deliveredLive.Add(1) }
func (m *Monitor) IncrStoredOffline()   { m.storedOffline.Add(1) }
func (m *Monitor) IncrPushFailures()    { m.pushFailures.Add(1) }
func (m *Monitor) ConnOpened()          { m.activeConns.Add(1) }
func (m *Monitor) ConnClosed()          { m.activeConns.Add(-1) }

func (m *Monitor) Uptime() time.Duration { return time.Since(m.started) }

// Snapshot returns current counters plus process memory/CPU when available.
func (m *Monitor) Snapshot() Stats {
	s := Stats{
		EventsConsumed:  m.eventsConsumed.Load(),
		EventsMalformed: m.eventsMalformed.Load(),
		MessagesSent:    m.messagesSent.Load(),
		DeliveredLive:   m.deliveredLive.Load(),
		StoredOffline:   m.storedOffline.Load(),
		PushFailures:    m.pushFailures.Load(),
		ActiveConns:     m.activeConns.Load(),
	}
	if m.self != nil {
		if mem, err := m.self.MemoryInfo(); err == nil {
			s.RAMBytes = mem.RSS
		}
		if cpu, err := m.self.CPUPercent(); err == nil {
			s.CPUPercent = cpu
		}
	}
	return s
}
