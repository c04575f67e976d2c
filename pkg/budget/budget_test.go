package budget

import "testing"

func TestRowLimit(t *testing.T) {
	m := New(2, 0)
	m.TryRecord(10)
	if m.IsStopped() {
		t.Fatalf("budget stopped too early after 1 of 2 rows")
	}
	m.TryRecord(10)
	if !m.IsStopped() {
		t.Fatalf("expected budget stopped after row limit reached")
	}
	if m.StoppedReason() != ReasonRowLimit {
		t.Errorf("StoppedReason() = %q, want %q", m.StoppedReason(), ReasonRowLimit)
	}
	if m.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", m.Rows())
	}
}

func TestByteLimit(t *testing.T) {
	m := New(0, 100)
	m.TryRecord(60)
	if m.IsStopped() {
		t.Fatalf("budget stopped too early at 60 of 100 bytes")
	}
	m.TryRecord(60)
	if !m.IsStopped() {
		t.Fatalf("expected budget stopped after byte limit reached")
	}
	if m.StoppedReason() != ReasonByteLimit {
		t.Errorf("StoppedReason() = %q, want %q", m.StoppedReason(), ReasonByteLimit)
	}
	if m.Bytes() != 120 {
		t.Errorf("Bytes() = %d, want 120", m.Bytes())
	}
}

func TestUnlimited(t *testing.T) {
	m := New(0, 0)
	for i := 0; i < 1000; i++ {
		m.TryRecord(1000)
	}
	if m.IsStopped() {
		t.Errorf("expected unlimited budget to never stop")
	}
}

func TestStopIsSticky(t *testing.T) {
	m := New(1, 0)
	m.TryRecord(1)
	if m.StoppedReason() != ReasonRowLimit {
		t.Fatalf("expected row limit reason, got %q", m.StoppedReason())
	}
	m.Stop(ReasonExternal)
	if m.StoppedReason() != ReasonRowLimit {
		t.Errorf("Stop() should not override an already-stopped reason, got %q", m.StoppedReason())
	}
}

func TestExternalStop(t *testing.T) {
	m := New(0, 0)
	m.Stop(ReasonExternal)
	if !m.IsStopped() {
		t.Fatalf("expected IsStopped() after explicit Stop()")
	}
	if m.StoppedReason() != ReasonExternal {
		t.Errorf("StoppedReason() = %q, want %q", m.StoppedReason(), ReasonExternal)
	}
}
