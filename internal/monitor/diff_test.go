package monitor

import "testing"

func TestDiffBaselineOnFirstSnapshot(t *testing.T) {
	t.Parallel()
	cur := ProjectSnapshot{
		{Label: "D1 普通票 ¥128", Status: "on sale"},
		{Label: "D1 VIP票 ¥428", Status: "sold out"},
	}
	ev := Diff("1001", "BW2025", nil, false, cur)
	if ev == nil || ev.Kind != KindBaseline {
		t.Fatalf("ev = %+v, want baseline", ev)
	}
	if len(ev.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(ev.Changes))
	}
	if ev.Changes[0].Label != "D1 普通票 ¥128" || ev.Changes[1].Label != "D1 VIP票 ¥428" {
		t.Fatalf("baseline order not preserved: %+v", ev.Changes)
	}
}

func TestDiffEmptyFirstSnapshotEmitsNothing(t *testing.T) {
	t.Parallel()
	if ev := Diff("1001", "x", nil, false, nil); ev != nil {
		t.Fatalf("ev = %+v, want nil", ev)
	}
}

func TestDiffIdempotent(t *testing.T) {
	t.Parallel()
	snap := ProjectSnapshot{{Label: "A ticket ¥100", Status: "on sale"}}
	if ev := Diff("1001", "x", snap, true, snap); ev != nil {
		t.Fatalf("same snapshot twice produced %+v", ev)
	}
}

func TestDiffChangedAndAdded(t *testing.T) {
	t.Parallel()
	prev := ProjectSnapshot{{Label: "A ticket ¥100", Status: "on sale"}}
	cur := ProjectSnapshot{
		{Label: "A ticket ¥100", Status: "sold out"},
		{Label: "B ticket ¥200", Status: "on sale"},
	}
	ev := Diff("1001", "x", prev, true, cur)
	if ev == nil || ev.Kind != KindDelta {
		t.Fatalf("ev = %+v, want delta", ev)
	}
	if len(ev.Changes) != 2 {
		t.Fatalf("changes = %+v", ev.Changes)
	}
	if ev.Changes[0].Old != "on sale" || ev.Changes[0].New != "sold out" {
		t.Fatalf("changed entry = %+v", ev.Changes[0])
	}
	if ev.Changes[1].Old != "" || ev.Changes[1].New != "on sale" {
		t.Fatalf("added entry = %+v", ev.Changes[1])
	}
}

func TestDiffSilentDisappearance(t *testing.T) {
	t.Parallel()
	prev := ProjectSnapshot{
		{Label: "A ticket ¥100", Status: "on sale"},
		{Label: "B ticket ¥200", Status: "on sale"},
	}
	cur := ProjectSnapshot{{Label: "A ticket ¥100", Status: "on sale"}}
	if ev := Diff("1001", "x", prev, true, cur); ev != nil {
		t.Fatalf("disappearance reported: %+v", ev)
	}
}
