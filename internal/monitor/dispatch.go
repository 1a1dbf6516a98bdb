package monitor

import (
	"context"
	"strings"

	kit "showbot/internal/transport"
	logx "showbot/pkg/logx"
)

// Dispatcher fans one change event out to every subscribed context.
type Dispatcher struct {
	deliver Deliverer
	log     logx.Logger
}

func NewDispatcher(deliver Deliverer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{deliver: deliver, log: log}
}

// Dispatch delivers the event to each context in subs that tracks the
// event's project. One context's delivery failure never affects the
// others; a context without a recorded chat target is skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *ChangeEvent, subs map[string]ContextView) {
	if ev == nil || len(ev.Changes) == 0 {
		return
	}
	text := FormatEvent(ev)

	for key, view := range subs {
		if !tracksProject(view, ev.ProjectID) {
			continue
		}
		if !view.HasTarget() {
			d.log.Warn("subscriber unreachable (no delivery address)",
				logx.String("context", key), logx.String("project", ev.ProjectID))
			continue
		}
		err := d.deliver.Notify(ctx, kit.Notification{
			Channel: "monitor",
			Target:  view.Target,
			Text:    text,
		})
		if err != nil {
			d.log.Warn("delivery failed",
				logx.String("context", key), logx.String("project", ev.ProjectID), logx.Err(err))
		}
	}
}

func tracksProject(view ContextView, projectID string) bool {
	for _, p := range view.Projects {
		if p == projectID {
			return true
		}
	}
	return false
}

// FormatEvent renders one event as a chat message. Baseline events list
// everything; delta events list only what moved.
func FormatEvent(ev *ChangeEvent) string {
	var b strings.Builder
	b.WriteString("🎫 Project: ")
	b.WriteString(ev.ProjectName)

	for _, c := range ev.Changes {
		b.WriteString("\n")
		switch {
		case ev.Kind == KindBaseline:
			b.WriteString(c.Label)
			b.WriteString(" - ")
			b.WriteString(string(c.New))
		case c.Old == "":
			b.WriteString("[Added] ")
			b.WriteString(c.Label)
			b.WriteString(" - ")
			b.WriteString(string(c.New))
		default:
			b.WriteString("[Changed] ")
			b.WriteString(c.Label)
			b.WriteString(" - ")
			b.WriteString(string(c.Old))
			b.WriteString(" → ")
			b.WriteString(string(c.New))
		}
	}
	return b.String()
}
