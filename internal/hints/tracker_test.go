package hints

import "testing"

func TestShowHintExhaustion(t *testing.T) {
	tr := NewTracker()
	tr.SetProblem("p1")
	hints := []string{"use a loop", "accumulate into a variable"}

	want := []struct {
		kind Kind
		text string
		last bool
	}{
		{KindHint, "use a loop", false},
		{KindHint, "accumulate into a variable", true},
		{KindExhausted, "", false},
		{KindExhausted, "", false},
	}

	for i, w := range want {
		r := tr.ShowHint(hints)
		if r.Kind != w.kind || r.Text != w.text || r.Last != w.last {
			t.Fatalf("call %d = %+v, want kind=%s text=%q last=%v", i+1, r, w.kind, w.text, w.last)
		}
		if tr.Level() > len(hints) {
			t.Fatalf("level %d exceeds hint count", tr.Level())
		}
	}
	if tr.Level() != 2 {
		t.Fatalf("Level() = %d, want 2", tr.Level())
	}
}

func TestShowHintWithoutHints(t *testing.T) {
	tr := NewTracker()
	r := tr.ShowHint(nil)
	if r.Kind != KindGeneric || r.Text != GenericHint {
		t.Fatalf("ShowHint(nil) = %+v", r)
	}
	if tr.Level() != 0 {
		t.Fatalf("generic hint advanced level to %d", tr.Level())
	}
}

func TestProblemChangeResetsLevel(t *testing.T) {
	tr := NewTracker()
	tr.SetProblem("p1")
	tr.ShowHint([]string{"a", "b"})

	// same problem keeps the level
	tr.SetProblem("p1")
	if tr.Level() != 1 {
		t.Fatalf("Level() = %d, want 1", tr.Level())
	}

	tr.SetProblem("p2")
	if tr.Level() != 0 {
		t.Fatalf("Level() after problem change = %d, want 0", tr.Level())
	}
	if r := tr.ShowHint([]string{"c"}); r.Text != "c" || !r.Last || r.Number != 1 {
		t.Fatalf("first hint for p2 = %+v", r)
	}
}

func TestReset(t *testing.T) {
	tr := NewTracker()
	tr.ShowHint([]string{"a"})
	tr.Reset()
	if tr.Level() != 0 {
		t.Fatalf("Level() after Reset = %d", tr.Level())
	}
}
