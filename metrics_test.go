package reactor

import "testing"

func TestMetricsRecordRead(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(128, true)
	m.RecordRead(0, false)

	snap := m.Snapshot()
	if snap.ReadOps != 2 {
		t.Errorf("ReadOps = %d, want 2", snap.ReadOps)
	}
	if snap.ReadBytes != 128 {
		t.Errorf("ReadBytes = %d, want 128", snap.ReadBytes)
	}
	if snap.ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", snap.ReadErrors)
	}
}

func TestMetricsRecordWrite(t *testing.T) {
	m := NewMetrics()
	m.RecordWrite(64, true)

	snap := m.Snapshot()
	if snap.WriteOps != 1 {
		t.Errorf("WriteOps = %d, want 1", snap.WriteOps)
	}
	if snap.WriteBytes != 64 {
		t.Errorf("WriteBytes = %d, want 64", snap.WriteBytes)
	}
}

func TestMetricsAcceptConnect(t *testing.T) {
	m := NewMetrics()
	m.RecordAccept(true)
	m.RecordAccept(false)
	m.RecordConnect(true)

	snap := m.Snapshot()
	if snap.Accepts != 2 {
		t.Errorf("Accepts = %d, want 2", snap.Accepts)
	}
	if snap.AcceptErrors != 1 {
		t.Errorf("AcceptErrors = %d, want 1", snap.AcceptErrors)
	}
	if snap.Connects != 1 {
		t.Errorf("Connects = %d, want 1", snap.Connects)
	}
}

func TestMetricsWaitLatencyHistogram(t *testing.T) {
	m := NewMetrics()
	m.RecordWait(3, 5_000) // 5us, falls in the 10us+ buckets

	snap := m.Snapshot()
	if snap.WaitCalls != 1 {
		t.Errorf("WaitCalls = %d, want 1", snap.WaitCalls)
	}
	if snap.ReadyTotal != 3 {
		t.Errorf("ReadyTotal = %d, want 3", snap.ReadyTotal)
	}
	if snap.LatencyHistogram[0] != 0 {
		t.Errorf("1us bucket should not have absorbed a 5us sample, got %d", snap.LatencyHistogram[0])
	}
	if snap.LatencyHistogram[1] != 1 {
		t.Errorf("10us bucket should have absorbed the 5us sample, got %d", snap.LatencyHistogram[1])
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordRead(128, true)
	m.RecordAccept(true)
	m.Reset()

	snap := m.Snapshot()
	if snap.ReadOps != 0 || snap.Accepts != 0 {
		t.Errorf("Reset did not clear counters: %+v", snap)
	}
}

func TestMetricsObserverSatisfiesObserver(t *testing.T) {
	m := NewMetrics()
	var obs Observer = NewMetricsObserver(m)

	obs.ObserveRead(10, true)
	obs.ObserveWrite(20, true)
	obs.ObserveAccept(true)
	obs.ObserveConnect(true)
	obs.ObserveWait(1, 100)
	obs.ObserveDispatch(1, 100)
	obs.ObserveError(KindClosed)

	snap := m.Snapshot()
	if snap.ReadOps != 1 || snap.WriteOps != 1 || snap.Accepts != 1 || snap.Connects != 1 {
		t.Errorf("unexpected snapshot after observer calls: %+v", snap)
	}
	if snap.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", snap.ErrorCount)
	}
}

func TestNoOpObserverSatisfiesObserver(t *testing.T) {
	var obs Observer = NoOpObserver{}
	obs.ObserveRead(1, true)
	obs.ObserveWrite(1, true)
	obs.ObserveAccept(true)
	obs.ObserveConnect(true)
	obs.ObserveWait(1, 1)
	obs.ObserveDispatch(1, 1)
	obs.ObserveError(KindClosed)
}
