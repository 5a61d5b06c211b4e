package playtime

import "testing"

func TestGameSignalEdgeTriggered(t *testing.T) {
	signal := NewGameSignal()

	var got []bool
	signal.Subscribe(func(loaded bool) {
		got = append(got, loaded)
	})

	steps := []struct {
		value       bool
		wantChanged bool
	}{
		{false, false},
		{true, true},
		{true, false},
		{false, true},
		{false, false},
		{true, true},
	}

	for i, step := range steps {
		if changed := signal.Set(step.value); changed != step.wantChanged {
			t.Errorf("step %d: expected changed=%v, got %v", i, step.wantChanged, changed)
		}
	}

	want := []bool{true, false, true}
	if len(got) != len(want) {
		t.Fatalf("Expected %d notifications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestGameSignalUnsubscribe(t *testing.T) {
	signal := NewGameSignal()

	var first, second int
	unsubFirst := signal.Subscribe(func(bool) { first++ })
	signal.Subscribe(func(bool) { second++ })

	signal.Set(true)
	unsubFirst()
	unsubFirst()
	signal.Set(false)

	if first != 1 {
		t.Errorf("Expected first subscriber notified once, got %d", first)
	}
	if second != 2 {
		t.Errorf("Expected second subscriber notified twice, got %d", second)
	}
	if n := signal.Subscribers(); n != 1 {
		t.Errorf("Expected 1 subscriber, got %d", n)
	}
}
