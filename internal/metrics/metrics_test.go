package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ipc-subnet/subnet-agent/internal/membership"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("0.1.0", "go1.26.0")
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.Registry == nil {
		t.Fatal("Registry is nil")
	}
}

func TestMetricsIsolation(t *testing.T) {
	m1 := NewMetrics("0.1.0", "go1.26.0")
	m2 := NewMetrics("0.2.0", "go1.26.0")

	m1.ObserveDecodeError()

	families, err := m2.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "subnet_agent_membership_decode_errors_total" {
			for _, metric := range f.GetMetric() {
				if metric.GetCounter().GetValue() != 0 {
					t.Error("m2 registry saw m1 counter value; registries are not isolated")
				}
			}
		}
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	m.ObserveEvent(membership.AddedProvider)
	m.ObserveEvent(membership.SkippedProvider)
	m.ObservePublish(nil)
	m.ObservePublish(errors.New("boom"))
	m.ObserveDecodeError()
	m.ObserveCheckpointSubmission("/f01234/f05678", nil)
	m.ObserveRPCCall("Filecoin.ChainHead", 0.01, nil)
	m.SupervisedPairs.Set(3)
	m.DaemonRequestsTotal.WithLabelValues("reload_config", "ok").Inc()
	m.DaemonRequestDurationSeconds.WithLabelValues("reload_config", "ok").Observe(0.001)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	expected := map[string]bool{
		"subnet_agent_membership_events_total":          false,
		"subnet_agent_membership_publish_total":         false,
		"subnet_agent_membership_decode_errors_total":   false,
		"subnet_agent_checkpoint_submissions_total":     false,
		"subnet_agent_supervised_pairs":                 false,
		"subnet_agent_rpc_calls_total":                  false,
		"subnet_agent_rpc_call_duration_seconds":        false,
		"subnet_agent_jsonrpc_requests_total":           false,
		"subnet_agent_jsonrpc_request_duration_seconds": false,
		"subnet_agent_info":                             false,
	}

	for _, f := range families {
		if _, ok := expected[f.GetName()]; ok {
			expected[f.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric family %q not found in gathered output", name)
		}
	}
}

func TestMetricsBuildInfo(t *testing.T) {
	m := NewMetrics("1.2.3", "go1.26.0")

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	for _, f := range families {
		if f.GetName() != "subnet_agent_info" {
			continue
		}
		for _, metric := range f.GetMetric() {
			if metric.GetGauge().GetValue() != 1 {
				t.Errorf("build info gauge value = %f, want 1", metric.GetGauge().GetValue())
			}
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["version"] != "1.2.3" {
				t.Errorf("version label = %q, want %q", labels["version"], "1.2.3")
			}
			if labels["go_version"] != "go1.26.0" {
				t.Errorf("go_version label = %q, want %q", labels["go_version"], "go1.26.0")
			}
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("0.1.0", "go1.26.0")
	m.ObserveDecodeError()

	handler := m.Handler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("handler returned status %d, want 200", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	output := string(body)

	if !strings.Contains(output, "subnet_agent_membership_decode_errors_total") {
		t.Error("handler output missing subnet_agent_membership_decode_errors_total")
	}
	if !strings.Contains(output, "subnet_agent_info") {
		t.Error("handler output missing subnet_agent_info")
	}
	if !strings.Contains(output, "go_goroutines") {
		t.Error("handler output missing go_goroutines (Go runtime collector)")
	}
}

func TestMetricsNoLabelCollision(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	for _, kind := range []membership.EventKind{membership.AddedProvider, membership.SkippedProvider, membership.RemovedProvider} {
		m.ObserveEvent(kind)
	}
	for _, result := range []error{nil, errors.New("x")} {
		m.ObservePublish(result)
		m.ObserveRPCCall("Filecoin.MpoolPushMessage", 0.1, result)
	}

	if _, err := m.Registry.Gather(); err != nil {
		t.Fatalf("Gather failed after exercising all labels: %v", err)
	}
}

func TestMetricsRegistryDoesNotUseGlobal(t *testing.T) {
	m := NewMetrics("test", "go1.26.0")

	if m.Registry == prometheus.DefaultRegisterer {
		t.Error("Metrics registry is the global DefaultRegisterer; should be isolated")
	}
}
