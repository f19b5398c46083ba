// Package monitor is the StuckTransactionMonitor spec.md §4.6 names: a background watcher that
// flags (never aborts) transactions whose wall-clock age exceeds a configured timeout.
package monitor

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/SharedCode/kvenv"
)

// Transaction is the subset of a live transaction the monitor needs to inspect.
type Transaction struct {
	ID             kvenv.UUID
	Created        time.Time
	CreatingThread string // optional human-readable label; stack is captured at registration
	Stack          string
}

// LiveLister supplies the current set of live transactions; normally backed by the environment's
// txnset.Set.
type LiveLister func() []Transaction

// Monitor periodically scans live transactions and logs (but never aborts) any exceeding Timeout.
type Monitor struct {
	Timeout time.Duration
	list    LiveLister

	mu      sync.Mutex
	stopped chan struct{}
	flagged map[kvenv.UUID]bool
}

// New builds a Monitor. It does nothing until Start is called; construction never spawns a
// goroutine (spec.md §9 design note: separate construction from activation).
func New(timeout time.Duration, list LiveLister) *Monitor {
	return &Monitor{Timeout: timeout, list: list, flagged: make(map[kvenv.UUID]bool)}
}

// Enabled reports whether this monitor should run at all (spec.md §4.6: "enabled iff
// config.transactionTimeout > 0").
func (m *Monitor) Enabled() bool {
	return m.Timeout > 0
}

// Start spawns the scan loop at the given interval. Call Stop to end it. Safe to call only once;
// callers gate this behind Enabled().
func (m *Monitor) Start(ctx context.Context, scanInterval time.Duration) {
	m.mu.Lock()
	if m.stopped != nil {
		m.mu.Unlock()
		return
	}
	m.stopped = make(chan struct{})
	stop := m.stopped
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				m.scan()
			}
		}
	}()
}

// Stop ends the scan loop. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped != nil {
		close(m.stopped)
		m.stopped = nil
	}
}

func (m *Monitor) scan() {
	now := kvenv.Now()
	for _, txn := range m.list() {
		age := now.Sub(txn.Created)
		if age <= m.Timeout {
			continue
		}
		m.mu.Lock()
		already := m.flagged[txn.ID]
		m.flagged[txn.ID] = true
		m.mu.Unlock()
		if already {
			continue
		}
		slog.Warn("transaction exceeded timeout",
			"txn", txn.ID.String(),
			"age", age,
			"timeout", m.Timeout,
			"stack", txn.Stack,
		)
	}
}

// CaptureStack returns the caller's current goroutine stack, for stamping onto a Transaction at
// creation time when the monitor is enabled.
func CaptureStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
