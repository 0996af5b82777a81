package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/hexacore-go/taskhttp/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RunnerSnapshotProvider provides current runner stats snapshots.
type RunnerSnapshotProvider interface {
	Stats() core.RunnerStats
}

// SnapshotPoller periodically exports TaskRunner.Stats() snapshots into
// Prometheus gauges, complementing the per-event counters MetricsExporter
// records as tasks run.
type SnapshotPoller struct {
	interval time.Duration

	runnersMu sync.RWMutex
	runners   map[string]RunnerSnapshotProvider

	runnerBusyQueues      *prom.GaugeVec
	runnerExecuteCalls     *prom.GaugeVec
	runnerRunCalls         *prom.GaugeVec
	runnerCoordinatorBusy  *prom.GaugeVec
	runnerClosed           *prom.GaugeVec
	queuePending           *prom.GaugeVec
	queueActive            *prom.GaugeVec
	queueClosed            *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	runnerBusyQueues := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_busy_queues",
		Help:      "Number of queues with an active task, per runner.",
	}, []string{"runner"})
	runnerExecuteCalls := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_execute_call_count",
		Help:      "Cumulative workers spawned by a runner.",
	}, []string{"runner"})
	runnerRunCalls := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_run_call_count",
		Help:      "Cumulative workers that actually started running, per runner.",
	}, []string{"runner"})
	runnerCoordinatorBusy := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_coordinator_waiting",
		Help:      "Whether a worker is currently parked as coordinator (1=waiting, 0=not).",
	}, []string{"runner"})
	runnerClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "runner_closed",
		Help:      "Runner closed state (1=closed, 0=open).",
	}, []string{"runner"})
	queuePending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "queue_pending",
		Help:      "Pending task count, per queue.",
	}, []string{"runner", "queue"})
	queueActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "queue_active",
		Help:      "Whether a queue has a task currently running (1=active, 0=idle).",
	}, []string{"runner", "queue"})
	queueClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "taskrunner",
		Name:      "queue_closed",
		Help:      "Queue shutdown state (1=closed, 0=open).",
	}, []string{"runner", "queue"})

	var err error
	if runnerBusyQueues, err = registerCollector(reg, runnerBusyQueues); err != nil {
		return nil, err
	}
	if runnerExecuteCalls, err = registerCollector(reg, runnerExecuteCalls); err != nil {
		return nil, err
	}
	if runnerRunCalls, err = registerCollector(reg, runnerRunCalls); err != nil {
		return nil, err
	}
	if runnerCoordinatorBusy, err = registerCollector(reg, runnerCoordinatorBusy); err != nil {
		return nil, err
	}
	if runnerClosed, err = registerCollector(reg, runnerClosed); err != nil {
		return nil, err
	}
	if queuePending, err = registerCollector(reg, queuePending); err != nil {
		return nil, err
	}
	if queueActive, err = registerCollector(reg, queueActive); err != nil {
		return nil, err
	}
	if queueClosed, err = registerCollector(reg, queueClosed); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:              interval,
		runners:               make(map[string]RunnerSnapshotProvider),
		runnerBusyQueues:      runnerBusyQueues,
		runnerExecuteCalls:    runnerExecuteCalls,
		runnerRunCalls:        runnerRunCalls,
		runnerCoordinatorBusy: runnerCoordinatorBusy,
		runnerClosed:          runnerClosed,
		queuePending:          queuePending,
		queueActive:           queueActive,
		queueClosed:           queueClosed,
	}, nil
}

// AddRunner adds or replaces a runner snapshot provider by name.
func (p *SnapshotPoller) AddRunner(name string, provider RunnerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runner")
	p.runnersMu.Lock()
	p.runners[name] = provider
	p.runnersMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.runnersMu.RLock()
	defer p.runnersMu.RUnlock()

	for name, provider := range p.runners {
		stats := provider.Stats()
		p.runnerBusyQueues.WithLabelValues(name).Set(float64(stats.BusyQueues))
		p.runnerExecuteCalls.WithLabelValues(name).Set(float64(stats.ExecuteCallCount))
		p.runnerRunCalls.WithLabelValues(name).Set(float64(stats.RunCallCount))
		p.runnerCoordinatorBusy.WithLabelValues(name).Set(boolToFloat(stats.CoordinatorWaiting))
		p.runnerClosed.WithLabelValues(name).Set(boolToFloat(stats.Closed))

		for _, q := range stats.Queues {
			p.queuePending.WithLabelValues(name, q.Name).Set(float64(q.Pending))
			p.queueActive.WithLabelValues(name, q.Name).Set(boolToFloat(q.Active))
			p.queueClosed.WithLabelValues(name, q.Name).Set(boolToFloat(q.Closed))
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
