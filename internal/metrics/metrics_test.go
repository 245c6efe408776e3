package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics("tickspeak")

	m.ObservePriceSample("ok")
	m.ObserveAlert("up", 1515)
	m.ObserveSpeak("spawned")
	m.ObserveSpeak("debounced")
	m.ObserveUtterance("completed")
	m.ObserveFirstAudioLatency(120 * time.Millisecond)
	m.SetPrefixClips(3)

	body := scrape(t, m)
	for _, want := range []string{
		`tickspeak_price_samples_total{result="ok"} 1`,
		`tickspeak_alerts_total{kind="up"} 1`,
		`tickspeak_checkpoint_price 1515`,
		`tickspeak_speak_requests_total{outcome="debounced"} 1`,
		`tickspeak_utterances_total{result="completed"} 1`,
		`tickspeak_first_audio_latency_ms_count 1`,
		`tickspeak_prefix_clips 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePriceSample("ok")
	m.ObserveAlert("down", 1)
	m.ObserveSpeak("spawned")
	m.ObserveUtterance("failed")
	m.ObserveFirstAudioLatency(time.Second)
	m.SetPrefixClips(1)
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("tickspeak")
	b := NewMetrics("tickspeak")
	a.ObserveSpeak("spawned")

	if strings.Contains(scrape(t, b), `outcome="spawned"`) {
		t.Error("metrics leaked between registries")
	}
}
