package metrics

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/rickgao/issue-dashboard/internal/connection"
	"github.com/rickgao/issue-dashboard/internal/model"
)

const namespace = "dashboard"

// Source is the state rendered on one scrape.
type Source struct {
	Stats   connection.Stats
	Metrics *model.MetricsSnapshot // nil until the first snapshot arrives
	Clients int                    // Connected relay clients
}

// Gather builds the metric families for src.
func Gather(src Source) []*dto.MetricFamily {
	s := src.Stats

	var phases []*dto.Metric
	for _, p := range []model.ConnectionPhase{model.PhaseConnecting, model.PhaseConnected, model.PhaseDisconnected} {
		v := 0.0
		if s.Phase == p {
			v = 1
		}
		phases = append(phases, gauge(v, "phase", string(p)))
	}

	families := []*dto.MetricFamily{
		family("stream_phase", "Current stream connection phase (1 for the active phase).", dto.MetricType_GAUGE, phases...),
		family("stream_opens_total", "Stream channels opened.", dto.MetricType_COUNTER, counter(float64(s.Opens))),
		family("stream_reconnects_total", "Stream channels opened by the reconnect timer.", dto.MetricType_COUNTER, counter(float64(s.Reconnects))),
		family("stream_transport_errors_total", "Stream transport errors.", dto.MetricType_COUNTER, counter(float64(s.TransportErrors))),
		family("stream_frames_total", "Stream frames by outcome.", dto.MetricType_COUNTER,
			counter(float64(s.FramesReceived), "result", "received"),
			counter(float64(s.FramesMalformed), "result", "malformed"),
			counter(float64(s.FramesIgnored), "result", "ignored"),
		),
		family("relay_clients", "Connected relay websocket clients.", dto.MetricType_GAUGE, gauge(float64(src.Clients))),
	}

	if !s.LastFrameAt.IsZero() {
		families = append(families, family("stream_last_frame_timestamp_seconds",
			"Unix time of the last routed frame.", dto.MetricType_GAUGE,
			gauge(float64(s.LastFrameAt.UnixMilli())/1e3)))
	}

	if m := src.Metrics; m != nil {
		families = append(families,
			family("issues", "Issues by lifecycle bucket from the latest snapshot.", dto.MetricType_GAUGE,
				gauge(float64(m.TotalIssues), "bucket", "total"),
				gauge(float64(m.OpenIssues), "bucket", "open"),
				gauge(float64(m.ResolvedIssues), "bucket", "resolved"),
				gauge(float64(m.ClosedIssues), "bucket", "closed"),
			),
			family("issues_by_status", "Issues by status from the latest snapshot.", dto.MetricType_GAUGE,
				statusBreakdown(m.IssuesByStatus)...),
			family("issues_by_category", "Issues by category from the latest snapshot.", dto.MetricType_GAUGE,
				breakdown("category", m.IssuesByCategory)...),
			family("issues_by_priority", "Issues by priority from the latest snapshot.", dto.MetricType_GAUGE,
				breakdown("priority", m.IssuesByPriority)...),
		)
		if m.IssuesCreatedLast5Minutes != nil {
			families = append(families, family("issues_created_last_5m", "Issues created in the last five minutes.",
				dto.MetricType_GAUGE, gauge(float64(*m.IssuesCreatedLast5Minutes))))
		}
		if m.IssuesResolvedLast5Minutes != nil {
			families = append(families, family("issues_resolved_last_5m", "Issues resolved in the last five minutes.",
				dto.MetricType_GAUGE, gauge(float64(*m.IssuesResolvedLast5Minutes))))
		}
	}

	return families
}

// WriteText writes families in the Prometheus text format. Empty families
// are skipped.
func WriteText(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the families gathered from source on each request.
func Handler(source func() Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := WriteText(w, Gather(source())); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(namespace + "_" + name),
		Help:   ptr(help),
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

func gauge(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: ptr(v)}}
}

func counter(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: ptr(v)}}
}

// labelPairs turns name, value, name, value... into label pairs.
func labelPairs(kv []string) []*dto.LabelPair {
	var out []*dto.LabelPair
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: ptr(kv[i]), Value: ptr(kv[i+1])})
	}
	return out
}

// breakdown renders a snapshot map as one gauge per key, sorted by key.
func breakdown(label string, m map[string]int64) []*dto.Metric {
	out := make([]*dto.Metric, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, gauge(float64(m[k]), label, k))
	}
	return out
}

// statusBreakdown renders known statuses in workflow order, then any others
// sorted, each labelled with whether it counts as open.
func statusBreakdown(m map[string]int64) []*dto.Metric {
	out := make([]*dto.Metric, 0, len(m))
	add := func(status string) {
		out = append(out, gauge(float64(m[status]),
			"status", status,
			"open", strconv.FormatBool(model.IsOpenStatus(status)),
		))
	}
	for _, status := range model.Statuses {
		if _, ok := m[status]; ok {
			add(status)
		}
	}
	for _, status := range slices.Sorted(maps.Keys(m)) {
		if !slices.Contains(model.Statuses, status) {
			add(status)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
