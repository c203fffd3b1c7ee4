package observability

import (
	"strings"
	"testing"
)

func TestRenderPrometheus(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("submissions_judged_total", map[string]string{"status": "Accepted"}, 2)
	r.IncCounter("submissions_judged_total", map[string]string{"status": "Accepted"}, 1)
	r.SetGauge("broadcast_subscribers", map[string]string{"contest_id": "c1"}, 4)
	r.IncCounter("rate_limited_total", nil, 1)

	out := r.RenderPrometheus()
	for _, want := range []string{
		`submissions_judged_total{status="Accepted"} 3`,
		`broadcast_subscribers{contest_id="c1"} 4`,
		`rate_limited_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}
}

func TestCounterIgnoresZeroDelta(t *testing.T) {
	r := NewRegistry()
	r.IncCounter("noop_total", nil, 0)
	if got := r.Counter("noop_total", nil); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if strings.Contains(r.RenderPrometheus(), "noop_total") {
		t.Fatal("zero delta should not create a series")
	}
}
