package priority

import "testing"

func TestLevelOrdering(t *testing.T) {
	if !(High < Medium && Medium < Low) {
		t.Fatal("expected high < medium < low")
	}
}

func TestLevelText(t *testing.T) {
	for _, l := range []Level{High, Medium, Low} {
		text, err := l.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText: %v", err)
		}
		var back Level
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%s): %v", text, err)
		}
		if back != l {
			t.Errorf("round trip %v -> %v", l, back)
		}
	}
	var l Level
	if err := l.UnmarshalText([]byte("urgent")); err == nil {
		t.Error("expected error for unknown level")
	}
}
