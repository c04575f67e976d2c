package version

import "testing"

func TestNewPlaceholderLocal(t *testing.T) {
	p := NewPlaceholder(0x0102)
	stamp := Stamp(p)
	if got := stamp.Local(); got != 0x0102 {
		t.Errorf("Local() = %#x, want 0x0102", got)
	}
	for i := 0; i < 10; i++ {
		if p[i] != 0 {
			t.Errorf("expected placeholder bytes zeroed, byte %d = %d", i, p[i])
		}
	}
}

func TestResolve(t *testing.T) {
	var order [10]byte
	for i := range order {
		order[i] = byte(i + 1)
	}
	stamp := Resolve(order, 0xBEEF)
	for i := 0; i < 10; i++ {
		if stamp[i] != order[i] {
			t.Errorf("commit order byte %d = %d, want %d", i, stamp[i], order[i])
		}
	}
	if stamp.Local() != 0xBEEF {
		t.Errorf("Local() = %#x, want 0xBEEF", stamp.Local())
	}
}

func TestIncomplete(t *testing.T) {
	stamp := Incomplete(7)
	for i := 0; i < 10; i++ {
		if stamp[i] != 0 {
			t.Errorf("incomplete stamp commit order byte %d = %d, want 0", i, stamp[i])
		}
	}
	if stamp.Local() != 7 {
		t.Errorf("Local() = %d, want 7", stamp.Local())
	}
}

func TestCompare(t *testing.T) {
	a := Resolve([10]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 1}, 0)
	b := Resolve([10]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 2}, 0)
	if Compare(a, b) >= 0 {
		t.Errorf("expected a < b")
	}
	if Compare(a, a) != 0 {
		t.Errorf("expected a == a")
	}

	sameCommit1 := Resolve([10]byte{}, 1)
	sameCommit2 := Resolve([10]byte{}, 2)
	if Compare(sameCommit1, sameCommit2) >= 0 {
		t.Errorf("expected local ordinal to break ties within the same commit order")
	}
}
