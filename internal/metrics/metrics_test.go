package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := &dto.Metric{}
	if err := (<-ch).Write(m); err != nil {
		t.Fatalf("Write() = %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestNilSinkMethodsDoNotPanic(t *testing.T) {
	var s *Sink
	s.ScanCompleted()
	s.StrategyAttempt("open", true, time.Millisecond)
	s.ConnectionAdopted()
	s.Reconnect("wlan0", false)
	s.GaveUp()
	s.SetRadiosUp(2)
	s.SetBestScore(71.5)
}

func TestScanCompletedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	s.ScanCompleted()
	s.ScanCompleted()
	if got := counterValue(t, s.scansCompleted); got != 2 {
		t.Errorf("scansCompleted = %v, want 2", got)
	}
}

func TestConnectionAdoptedIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	s.ConnectionAdopted()
	if got := counterValue(t, s.adoptedTotal); got != 1 {
		t.Errorf("adoptedTotal = %v, want 1", got)
	}
}

func TestSetBestScoreUpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(reg)
	s.SetBestScore(88.25)
	if got := counterValue(t, s.connectionScore); got != 88.25 {
		t.Errorf("connectionScore = %v, want 88.25", got)
	}
}
