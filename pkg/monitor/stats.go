package monitor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkloadStats counts index traffic. The plain counters back the
// in-process summary; the Prometheus vectors carry per-view detail.
type WorkloadStats struct {
	ReadCount   uint64
	WriteCount  uint64
	HitCount    uint64
	RejectCount uint64

	lookups    *prometheus.CounterVec
	inserts    prometheus.Counter
	rejections *prometheus.CounterVec
}

// NewWorkloadStats creates the collectors and registers them on reg when it
// is non-nil.
func NewWorkloadStats(reg prometheus.Registerer) *WorkloadStats {
	ws := &WorkloadStats{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiview",
			Name:      "lookups_total",
			Help:      "Point lookups by view and result.",
		}, []string{"view", "result"}),
		inserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiview",
			Name:      "inserts_total",
			Help:      "Records committed to the index.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multiview",
			Name:      "insert_rejections_total",
			Help:      "Inserts rejected for a duplicate key, by the view that refused them.",
		}, []string{"view"}),
	}
	if reg != nil {
		reg.MustRegister(ws.lookups, ws.inserts, ws.rejections)
	}
	return ws
}

func (ws *WorkloadStats) RecordLookup(view string, hit bool) {
	atomic.AddUint64(&ws.ReadCount, 1)
	result := "miss"
	if hit {
		atomic.AddUint64(&ws.HitCount, 1)
		result = "hit"
	}
	ws.lookups.WithLabelValues(view, result).Inc()
}

func (ws *WorkloadStats) RecordWrite() {
	atomic.AddUint64(&ws.WriteCount, 1)
	ws.inserts.Inc()
}

func (ws *WorkloadStats) RecordReject(view string) {
	atomic.AddUint64(&ws.RejectCount, 1)
	ws.rejections.WithLabelValues(view).Inc()
}

// Hits is the running number of lookups that found a record.
func (ws *WorkloadStats) Hits() uint64 {
	return atomic.LoadUint64(&ws.HitCount)
}

func (ws *WorkloadStats) GetReadWriteRatio() float64 {
	reads := atomic.LoadUint64(&ws.ReadCount)
	writes := atomic.LoadUint64(&ws.WriteCount)

	if writes == 0 {
		if reads > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(reads) / float64(writes)
}

// LookupCounter exposes the per-view lookup counter for a result label.
func (ws *WorkloadStats) LookupCounter(view, result string) prometheus.Counter {
	return ws.lookups.WithLabelValues(view, result)
}

func (ws *WorkloadStats) RejectionCounter(view string) prometheus.Counter {
	return ws.rejections.WithLabelValues(view)
}

func (ws *WorkloadStats) InsertCounter() prometheus.Counter {
	return ws.inserts
}
