package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"showbot/internal/monitor"
	"showbot/internal/router"
)

const bwUsage = "usage: /bw on|off|add <id>|rm <id>|list|now <id>"

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Name:        "bw",
			Description: "ticket sale monitoring",
			Usage:       "/bw on|off|add|rm|list|now",
			Timeout:     30 * time.Second,
			Handle:      a.handleBW,
		},
		{
			Name:        "status",
			Description: "bot runtime status",
			Usage:       "/status",
			Handle:      a.handleStatus,
		},
	}
}

func (a *App) handleBW(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, bwUsage)
	}
	key := req.ContextKey

	switch strings.ToLower(req.Args[0]) {
	case "on":
		a.registry.SetEnabled(ctx, key, true)
		a.registry.RecordDeliveryAddress(ctx, key, req.Chat)
		return req.Reply(ctx, "monitoring on. add projects with /bw add <id>")

	case "off":
		a.registry.SetEnabled(ctx, key, false)
		return req.Reply(ctx, "monitoring off")

	case "add":
		if len(req.Args) < 2 {
			return req.Reply(ctx, "usage: /bw add <project id>")
		}
		pid := req.Args[1]
		a.registry.RecordDeliveryAddress(ctx, key, req.Chat)
		res, err := a.registry.AddProject(ctx, key, pid)
		switch {
		case errors.Is(err, monitor.ErrInvalidProjectID):
			return req.Reply(ctx, "project id must be a positive number")
		case errors.Is(err, monitor.ErrNotEnabled):
			return req.Reply(ctx, "turn monitoring on first: /bw on")
		case err != nil:
			return err
		case res == monitor.AlreadyTracked:
			return req.Reply(ctx, "already tracking "+pid)
		default:
			return req.Reply(ctx, "now tracking "+pid)
		}

	case "rm", "remove":
		if len(req.Args) < 2 {
			return req.Reply(ctx, "usage: /bw rm <project id>")
		}
		if !a.registry.Enabled(key) {
			return req.Reply(ctx, "turn monitoring on first: /bw on")
		}
		if a.registry.RemoveProject(ctx, key, req.Args[1]) == monitor.NotTracked {
			return req.Reply(ctx, "not tracking "+req.Args[1])
		}
		return req.Reply(ctx, "stopped tracking "+req.Args[1])

	case "list", "ls":
		if !a.registry.Enabled(key) {
			return req.Reply(ctx, "turn monitoring on first: /bw on")
		}
		pids := a.registry.ListProjects(key)
		if len(pids) == 0 {
			return req.Reply(ctx, "no projects tracked")
		}
		var b strings.Builder
		b.WriteString("tracked projects:")
		for i, pid := range pids {
			fmt.Fprintf(&b, "\n%d. %s", i+1, pid)
		}
		return req.Reply(ctx, b.String())

	case "now":
		if len(req.Args) < 2 {
			return req.Reply(ctx, "usage: /bw now <project id>")
		}
		if !a.registry.Enabled(key) {
			return req.Reply(ctx, "turn monitoring on first: /bw on")
		}
		pid := req.Args[1]
		a.registry.RecordDeliveryAddress(ctx, key, req.Chat)
		text, err := a.coord.Now(ctx, pid)
		if errors.Is(err, monitor.ErrInvalidProjectID) {
			return req.Reply(ctx, "project id must be a positive number")
		}
		if err != nil || text == "" {
			return req.Reply(ctx, "project "+pid+" returned no data")
		}
		return req.Reply(ctx, text)

	default:
		return req.Reply(ctx, bwUsage)
	}
}

func (a *App) handleStatus(ctx context.Context, req *router.Request) error {
	stats := a.coord.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %s\n", time.Since(a.started).Round(time.Second))
	fmt.Fprintf(&b, "cycles: %d\n", stats.Cycles)
	if !stats.LastCycle.IsZero() {
		fmt.Fprintf(&b, "last cycle: %s ago (%d projects, %d events, %d errors)\n",
			time.Since(stats.LastCycle).Round(time.Second),
			stats.LastProjects, stats.LastEvents, stats.LastErrors)
	}
	fmt.Fprintf(&b, "deliveries kept: %d\n", len(a.notif.Snapshot()))
	if a.sup != nil {
		fmt.Fprintf(&b, "goroutines: %d active / %d started\n", a.sup.Active(), a.sup.Started())
	}

	events := a.recentEvents()
	if n := len(events); n > 0 {
		b.WriteString("recent events:")
		start := 0
		if n > 5 {
			start = n - 5
		}
		for _, ev := range events[start:] {
			fmt.Fprintf(&b, "\n%s %s", ev.Time.Format("15:04:05"), ev.Type)
		}
	}
	return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
}
