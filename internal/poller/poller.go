package poller

import (
	"context"
	"sync"
	"time"

	"can-telemetry-dashboard/internal/logger"
	"can-telemetry-dashboard/internal/model"
	"can-telemetry-dashboard/internal/reconcile"
	"can-telemetry-dashboard/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetcher is the per-cycle request surface the poller drives.
type Fetcher interface {
	FetchLatest(ctx context.Context) (map[model.Field]float64, error)
	FetchStatus(ctx context.Context) (model.Status, error)
}

// Sink receives change events and error notices for the rendering layer.
type Sink interface {
	PublishChange(ev model.ChangeEvent)
	PublishError(msg string)
}

var (
	metricCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "cycles_total", Help: "Polling cycles started.",
	})
	metricCyclesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "cycles_skipped_total", Help: "Ticks skipped because the prior cycle was still in flight.",
	})
	metricFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "fetch_errors_total", Help: "Fetch failures by endpoint.",
	}, []string{"endpoint"})
	metricFieldChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "field_changes_total", Help: "Change events emitted by field.",
	}, []string{"field"})
	metricFetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "fetch_latency_seconds", Help: "Latency of gateway fetches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	metricHistoryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dashboard", Subsystem: "poller", Name: "history_errors_total", Help: "Errors writing change events to the history store.",
	})
)

func init() {
	prometheus.MustRegister(metricCycles, metricCyclesSkipped, metricFetchErrors, metricFieldChanges, metricFetchLatency, metricHistoryErrors)
}

var tickerFn = func(d time.Duration) *time.Ticker { return time.NewTicker(d) }

// Poller schedules fixed-interval polling cycles. Each cycle issues the
// telemetry and status fetches concurrently, waits for both, and applies the
// outcomes in a fixed order: telemetry first, status second. Connectivity is
// driven by the status endpoint alone: a telemetry fetch failure is surfaced
// as an error notice but never touches the connected flag, so a gateway that
// keeps answering /can/status while /can/latest fails holds a stable
// connectivity state instead of flapping once per cycle.
//
// At most one cycle is in flight at a time: if a tick fires while the prior
// cycle is still running, that tick is skipped and counted.
type Poller struct {
	fetcher  Fetcher
	rec      *reconcile.Reconciler
	sink     Sink
	store    storage.Store // nil disables history recording
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	// last published failure text per endpoint, for dedup. Cycles run one
	// at a time, so no lock is needed.
	lastErr map[string]string
}

// New builds a Poller. timeout bounds each fetch and should stay below
// interval so a hung gateway cannot stall scheduling.
func New(f Fetcher, rec *reconcile.Reconciler, sink Sink, store storage.Store, interval, timeout time.Duration, log *logger.Logger) *Poller {
	return &Poller{
		fetcher:  f,
		rec:      rec,
		sink:     sink,
		store:    store,
		interval: interval,
		timeout:  timeout,
		log:      log,
		lastErr:  make(map[string]string),
	}
}

// Run drives cycles until ctx is canceled. An in-flight cycle is not
// interrupted on shutdown; Run returns after the tick loop stops.
func (p *Poller) Run(ctx context.Context) {
	ticker := tickerFn(p.interval)
	defer ticker.Stop()

	idle := make(chan struct{}, 1)
	idle <- struct{}{}

	p.log.Infow("poller started", "interval", p.interval, "timeout", p.timeout)
	for {
		select {
		case <-ctx.Done():
			p.log.Infow("poller stopped")
			return
		case <-ticker.C:
			select {
			case <-idle:
				go func() {
					p.cycle(ctx)
					idle <- struct{}{}
				}()
			default:
				metricCyclesSkipped.Inc()
				p.log.Debugw("tick skipped, cycle in flight")
			}
		}
	}
}

type latestResult struct {
	values map[model.Field]float64
	err    error
}

type statusResult struct {
	status model.Status
	err    error
}

func (p *Poller) cycle(ctx context.Context) {
	metricCycles.Inc()
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		wg sync.WaitGroup
		lr latestResult
		sr statusResult
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		lr.values, lr.err = p.fetcher.FetchLatest(cctx)
		metricFetchLatency.WithLabelValues("latest").Observe(time.Since(start).Seconds())
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		sr.status, sr.err = p.fetcher.FetchStatus(cctx)
		metricFetchLatency.WithLabelValues("status").Observe(time.Since(start).Seconds())
	}()
	wg.Wait()

	// Telemetry outcome first, status outcome second. Only the status
	// outcome drives connectivity; see type doc.
	var events []model.ChangeEvent
	if lr.err != nil {
		metricFetchErrors.WithLabelValues("latest").Inc()
		p.notifyFailure("latest", lr.err)
	} else {
		delete(p.lastErr, "latest")
		events = append(events, p.rec.ApplyTelemetry(lr.values)...)
	}
	if sr.err != nil {
		metricFetchErrors.WithLabelValues("status").Inc()
		p.notifyFailure("status", sr.err)
		events = append(events, p.rec.ApplyFetchFailure()...)
	} else {
		delete(p.lastErr, "status")
		events = append(events, p.rec.ApplyStatus(sr.status)...)
	}

	for _, ev := range events {
		metricFieldChanges.WithLabelValues(string(ev.Field)).Inc()
		p.sink.PublishChange(ev)
		p.record(ev)
	}
}

// notifyFailure surfaces a failure to the sink, skipping repeats of the
// identical message so a flapping gateway does not flood the observer.
func (p *Poller) notifyFailure(endpoint string, err error) {
	msg := err.Error()
	p.log.Warnw("fetch failed", "endpoint", endpoint, "err", err)
	if p.lastErr[endpoint] == msg {
		return
	}
	p.lastErr[endpoint] = msg
	p.sink.PublishError(msg)
}

func (p *Poller) record(ev model.ChangeEvent) {
	if p.store == nil {
		return
	}
	s := model.Sample{Field: ev.Field, Value: ev.Value, Timestamp: ev.At}
	if err := p.store.SaveSample(s); err != nil {
		metricHistoryErrors.Inc()
		p.log.Errorw("history write failed", "field", ev.Field, "err", err)
	}
}
