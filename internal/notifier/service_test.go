package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	failLeft int
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failLeft > 0 {
		a.failLeft--
		return kit.MessageRef{}, errors.New("send failed")
	}
	a.sent = append(a.sent, text)
	return kit.MessageRef{}, nil
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: false}, &fakeAdapter{}, logx.Nop(), nil)
	err := s.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}

func TestNotifyBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, &fakeAdapter{}, logx.Nop(), nil)
	err := s.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 1}, Text: "x"})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, RatePerSec: 100}, ad, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Notify(ctx, kit.Notification{
		Channel: "monitor", Target: kit.ChatTarget{ChatID: 1}, Text: "hello",
	}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return ad.count() == 1 })

	if got := s.Snapshot(); len(got) != 1 || got[0].Text != "hello" {
		t.Fatalf("history = %+v", got)
	}

	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	s.Stop(sctx)
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{failLeft: 1}
	s := New(Config{
		Enabled: true, RatePerSec: 100,
		RetryMax: 2, RetryBase: 10 * time.Millisecond, RetryMaxDelay: 50 * time.Millisecond,
	}, ad, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Notify(ctx, kit.Notification{
		Channel: "monitor", Target: kit.ChatTarget{ChatID: 1}, Text: "retry me",
	}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return ad.count() == 1 })
}

func TestNotifyDedupWindow(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	s := New(Config{Enabled: true, RatePerSec: 100, DedupWindow: time.Minute}, ad, logx.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	n := kit.Notification{Channel: "monitor", Target: kit.ChatTarget{ChatID: 1}, Text: "same"}
	if err := s.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	// Identical message inside the window is swallowed, not an error.
	if err := s.Notify(ctx, n); err != nil {
		t.Fatal(err)
	}
	// Same text to a different chat must still go out.
	other := n
	other.Target.ChatID = 2
	if err := s.Notify(ctx, other); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return ad.count() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := ad.count(); got != 2 {
		t.Fatalf("deliveries = %d, want 2", got)
	}
}
