package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/metrics/export/internaldefs"
)

const (
	contentType = "text/plain; version=0.0.4; charset=utf-8"

	auditDroppedName = "lmsauth_audit_dropped_total"
	auditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// Source supplies counters to render. *lmsauth.Authority implements it.
type Source interface {
	MetricsSnapshot() lmsauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders authority metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New creates an exporter reading from auth.
func New(auth *lmsauth.Authority) *Exporter {
	return &Exporter{source: auth}
}

// NewFromSource creates an exporter over any Source.
func NewFromSource(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition on every request.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = p.Encode(w)
	})
}

// Render returns the exposition as a string. It is empty while the authority
// has metrics disabled and nothing was dropped.
func (p *Exporter) Render() string {
	var b strings.Builder
	_ = p.Encode(&b)
	return b.String()
}

// Encode writes one family per counter, the latency histogram and the audit
// drop counter, in that order.
func (p *Exporter) Encode(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return nil
	}

	out := bufio.NewWriter(w)
	for _, def := range internaldefs.CounterDefs {
		counter(out, def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
		histogram(out, def.Name, def.Help, buckets)
	}
	counter(out, auditDroppedName, auditDroppedHelp, dropped)
	return out.Flush()
}

func header(w *bufio.Writer, name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func sample(w *bufio.Writer, series string, v uint64) {
	w.WriteString(series)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(v, 10))
	w.WriteByte('\n')
}

func counter(w *bufio.Writer, name, help string, v uint64) {
	header(w, name, help, "counter")
	sample(w, name, v)
}

// histogram has no _sum series: the in-process histogram keeps bucket counts
// only.
func histogram(w *bufio.Writer, name, help string, cumulative [8]uint64) {
	header(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		sample(w, name+`_bucket{le="`+le+`"}`, cumulative[i])
	}
	sample(w, name+"_count", cumulative[len(cumulative)-1])
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string { return helpEscaper.Replace(help) }
