package monitor

import (
	"context"
	"strings"
	"testing"
	"time"

	"showbot/internal/provider/bili"
	"showbot/internal/schedule"
	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

func newTestCoordinator(t *testing.T, f Fetcher, d Deliverer) (*Coordinator, *Registry) {
	t.Helper()
	reg := NewRegistry(nil, logx.Nop())
	spec, err := schedule.Parse("30s")
	if err != nil {
		t.Fatal(err)
	}
	c := NewCoordinator(CoordinatorConfig{
		Schedule:     spec,
		FetchTimeout: 2 * time.Second,
		Concurrency:  4,
	}, reg, f, NewDispatcher(d, logx.Nop()), logx.Nop(), nil)
	return c, reg
}

func TestCycleScenarioBaselineChangedQuiet(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["1001"] = singleSKU("proj", "A", "ticket", 10000, 2)
	d := &fakeDeliverer{}
	c, reg := newTestCoordinator(t, f, d)
	ctx := context.Background()

	reg.SetEnabled(ctx, "ctx1", true)
	reg.RecordDeliveryAddress(ctx, "ctx1", kit.ChatTarget{ChatID: 1})
	if _, err := reg.AddProject(ctx, "ctx1", "1001"); err != nil {
		t.Fatal(err)
	}

	// First poll: baseline with the full listing.
	c.RunCycle(ctx)
	sent := d.all()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "A ticket ¥100 - on sale") {
		t.Fatalf("baseline text = %q", sent[0].Text)
	}

	// Second poll: sold out → Changed old→new.
	d.reset()
	f.projects["1001"] = singleSKU("proj", "A", "ticket", 10000, 4)
	c.RunCycle(ctx)
	sent = d.all()
	if len(sent) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sent))
	}
	if !strings.Contains(sent[0].Text, "[Changed] A ticket ¥100 - on sale → sold out") {
		t.Fatalf("change text = %q", sent[0].Text)
	}

	// Third poll: unchanged → nothing.
	d.reset()
	c.RunCycle(ctx)
	if sent := d.all(); len(sent) != 0 {
		t.Fatalf("unexpected deliveries: %v", sent)
	}
}

func TestCycleDedupAcrossSubscribers(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["2001"] = singleSKU("proj", "G", "T", 10000, 2)
	d := &fakeDeliverer{}
	c, reg := newTestCoordinator(t, f, d)
	ctx := context.Background()

	for i, key := range []string{"user:1", "group:-9"} {
		reg.SetEnabled(ctx, key, true)
		reg.RecordDeliveryAddress(ctx, key, kit.ChatTarget{ChatID: int64(i + 1)})
		if _, err := reg.AddProject(ctx, key, "2001"); err != nil {
			t.Fatal(err)
		}
	}

	c.RunCycle(ctx)
	if got := f.calls("2001"); got != 1 {
		t.Fatalf("fetch calls = %d, want exactly 1 per cycle", got)
	}
	if got := len(d.all()); got != 2 {
		t.Fatalf("deliveries = %d, want one per subscriber", got)
	}
}

func TestCycleFetchFailurePreservesState(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["2002"] = singleSKU("proj", "G", "T", 10000, 2)
	d := &fakeDeliverer{}
	c, reg := newTestCoordinator(t, f, d)
	ctx := context.Background()

	reg.SetEnabled(ctx, "ctx1", true)
	reg.RecordDeliveryAddress(ctx, "ctx1", kit.ChatTarget{ChatID: 1})
	if _, err := reg.AddProject(ctx, "ctx1", "2002"); err != nil {
		t.Fatal(err)
	}

	c.RunCycle(ctx) // baseline
	d.reset()

	f.projectErr["2002"] = bili.ErrUnreachable
	for i := 0; i < 3; i++ {
		c.RunCycle(ctx)
	}
	if sent := d.all(); len(sent) != 0 {
		t.Fatalf("deliveries during outage: %v", sent)
	}

	// Recovery with a changed status must diff against the pre-outage
	// snapshot, proving failed cycles never touched it.
	delete(f.projectErr, "2002")
	f.projects["2002"] = singleSKU("proj", "G", "T", 10000, 4)
	c.RunCycle(ctx)
	sent := d.all()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "[Changed]") {
		t.Fatalf("post-outage deliveries = %v, want one Changed", sent)
	}
}

func TestCycleEmptySuccessfulSnapshotOverwrites(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["2003"] = singleSKU("proj", "G", "T", 10000, 2)
	d := &fakeDeliverer{}
	c, reg := newTestCoordinator(t, f, d)
	ctx := context.Background()

	reg.SetEnabled(ctx, "ctx1", true)
	reg.RecordDeliveryAddress(ctx, "ctx1", kit.ChatTarget{ChatID: 1})
	if _, err := reg.AddProject(ctx, "ctx1", "2003"); err != nil {
		t.Fatal(err)
	}

	c.RunCycle(ctx) // baseline
	d.reset()

	// Empty but successful response replaces the snapshot.
	f.projects["2003"] = &bili.ProjectDetail{Name: "proj"}
	c.RunCycle(ctx)
	if sent := d.all(); len(sent) != 0 {
		t.Fatalf("deliveries for empty snapshot: %v", sent)
	}

	// The entry coming back is now Added, not a status change.
	f.projects["2003"] = singleSKU("proj", "G", "T", 10000, 2)
	c.RunCycle(ctx)
	sent := d.all()
	if len(sent) != 1 || !strings.Contains(sent[0].Text, "[Added]") {
		t.Fatalf("deliveries = %v, want one Added", sent)
	}
}

func TestNowDoesNotTouchState(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["3001"] = singleSKU("proj", "G", "T", 10000, 2)
	d := &fakeDeliverer{}
	c, reg := newTestCoordinator(t, f, d)
	ctx := context.Background()

	reg.SetEnabled(ctx, "ctx1", true)
	reg.RecordDeliveryAddress(ctx, "ctx1", kit.ChatTarget{ChatID: 1})
	if _, err := reg.AddProject(ctx, "ctx1", "3001"); err != nil {
		t.Fatal(err)
	}

	text, err := c.Now(ctx, "3001")
	if err != nil {
		t.Fatalf("Now: %v", err)
	}
	if !strings.Contains(text, "G T ¥100 - on sale") {
		t.Fatalf("Now text = %q", text)
	}

	// The scheduled first poll is still a baseline: Now left no state.
	c.RunCycle(ctx)
	sent := d.all()
	if len(sent) != 1 || strings.Contains(sent[0].Text, "[Changed]") {
		t.Fatalf("first cycle after Now = %v, want baseline", sent)
	}
}

func TestNowInvalidID(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	c, _ := newTestCoordinator(t, f, &fakeDeliverer{})
	if _, err := c.Now(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}
