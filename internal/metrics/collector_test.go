package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterVec_SameLabelsShareSeries(t *testing.T) {
	r := NewRegistry()
	r.Runs.With("tool_agent", "ok").Inc()
	r.Runs.With("tool_agent", "ok").Add(2)

	if got := r.Runs.Value("tool_agent", "ok"); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := r.Runs.Value("tool_agent", "error"); got != 0 {
		t.Fatalf("expected 0 for an unseen series, got %d", got)
	}
}

func TestCounterVec_WrongLabelCountPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a missing label value")
		}
	}()
	NewRegistry().Runs.With("tool_agent")
}

func TestStartRun(t *testing.T) {
	r := NewRegistry()
	finish := r.StartRun()
	if got := r.RunsInFlight.With().Value(); got != 1 {
		t.Fatalf("expected 1 run in flight, got %d", got)
	}
	finish("arithmetic", OutcomeOK)

	if got := r.RunsInFlight.With().Value(); got != 0 {
		t.Fatalf("expected 0 runs in flight, got %d", got)
	}
	if got := r.RunsStarted.Value(); got != 1 {
		t.Fatalf("expected 1 started run, got %d", got)
	}
	if got := r.Runs.Value("arithmetic", OutcomeOK); got != 1 {
		t.Fatalf("expected 1 finished arithmetic run, got %d", got)
	}
	if got := r.RunLatency.With("arithmetic").Count(); got != 1 {
		t.Fatalf("expected 1 latency observation, got %d", got)
	}
}

func TestRecordToolAndLLMOutcomes(t *testing.T) {
	r := NewRegistry()
	r.RecordToolCall("Weather Tool", nil)
	r.RecordToolCall("Weather Tool", errors.New("boom"))
	r.RecordLLMRequest(nil)

	if got := r.ToolCalls.Value("Weather Tool", OutcomeError); got != 1 {
		t.Fatalf("expected 1 failed tool call, got %d", got)
	}
	if got := r.ToolCalls.Value("Weather Tool", OutcomeOK); got != 1 {
		t.Fatalf("expected 1 successful tool call, got %d", got)
	}
	if got := r.LLMRequests.Value(OutcomeOK); got != 1 {
		t.Fatalf("expected 1 model call, got %d", got)
	}
}

func TestHandler_RendersFamilies(t *testing.T) {
	r := NewRegistry()
	r.RecordLabel("default")
	r.RecordLabel("default")
	r.Runs.With("tool_agent", "ok").Inc()
	r.RunLatency.With("tool_agent").Observe(1.5)
	r.RecordToolCall(`say "hi"`, nil)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"palette_uptime_seconds",
		"# TYPE palette_runs_total counter",
		`palette_runs_total{strategy="tool_agent",outcome="ok"} 1`,
		`palette_classifications_total{label="default"} 2`,
		"# TYPE palette_run_latency_seconds histogram",
		`palette_run_latency_seconds_bucket{strategy="tool_agent",le="1"} 0`,
		`palette_run_latency_seconds_bucket{strategy="tool_agent",le="2"} 1`,
		`palette_run_latency_seconds_bucket{strategy="tool_agent",le="+Inf"} 1`,
		`palette_run_latency_seconds_sum{strategy="tool_agent"} 1.5`,
		`palette_run_latency_seconds_count{strategy="tool_agent"} 1`,
		`palette_tool_calls_total{tool="say \"hi\"",outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
	if strings.Count(body, "# TYPE palette_runs_total") != 1 {
		t.Errorf("family header written more than once\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
}
