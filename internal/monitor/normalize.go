package monitor

import (
	"context"
	"fmt"
	"strings"

	"showbot/internal/provider/bili"
	logx "showbot/pkg/logx"
)

// Normalize fetches one project and flattens it into the canonical
// ordered snapshot. Provider responses carry SKUs in one of three
// mutually exclusive shapes, tried in priority order; the first shape
// that yields entries wins:
//
//  1. linked goods records (secondary lookup per goods id)
//  2. dated sessions (secondary lookup per sale date)
//  3. a screen list embedded in the project response itself
//
// A failed secondary lookup skips that sub-item only. A failed project
// fetch returns the error; the caller treats it as "no data this
// cycle", never as a reason to disable the subscription.
func Normalize(ctx context.Context, f Fetcher, projectID string, log logx.Logger) (string, ProjectSnapshot, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	p, err := f.Project(ctx, projectID)
	if err != nil {
		return "", nil, err
	}

	if snap := normalizeLinkedGoods(ctx, f, p, log); len(snap) > 0 {
		return p.Name, snap, nil
	}
	if snap := normalizeDatedSessions(ctx, f, projectID, p, log); len(snap) > 0 {
		return p.Name, snap, nil
	}
	return p.Name, flattenScreens("", p.ScreenList), nil
}

func normalizeLinkedGoods(ctx context.Context, f Fetcher, p *bili.ProjectDetail, log logx.Logger) ProjectSnapshot {
	var snap ProjectSnapshot
	for _, gid := range p.LinkGoodsIDs {
		g, err := f.Goods(ctx, gid.String())
		if err != nil {
			log.Debug("linked goods lookup skipped",
				logx.String("goods_id", gid.String()), logx.Err(err))
			continue
		}
		snap = append(snap, flattenScreens("", g.ScreenList)...)
	}
	return snap
}

func normalizeDatedSessions(ctx context.Context, f Fetcher, projectID string, p *bili.ProjectDetail, log logx.Logger) ProjectSnapshot {
	var snap ProjectSnapshot
	for _, sd := range p.SalesDates {
		if strings.TrimSpace(sd.Date) == "" {
			continue
		}
		screens, err := f.ProjectByDate(ctx, projectID, sd.Date)
		if err != nil {
			log.Debug("dated session lookup skipped",
				logx.String("project", projectID), logx.String("date", sd.Date), logx.Err(err))
			continue
		}
		snap = append(snap, flattenScreens(sd.Date+" ", screens)...)
	}
	return snap
}

func flattenScreens(labelPrefix string, screens []bili.Screen) ProjectSnapshot {
	var snap ProjectSnapshot
	for _, sc := range screens {
		for _, tk := range sc.TicketList {
			snap = append(snap, TicketEntry{
				Label:  labelPrefix + sc.Name + " " + tk.Desc + " ¥" + formatPrice(tk.Price),
				Status: statusFromCode(tk.SaleFlagNumber),
			})
		}
	}
	return snap
}

// formatPrice renders cents as yuan, dropping the fraction when whole.
func formatPrice(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("%d", cents/100)
	}
	return fmt.Sprintf("%.2f", float64(cents)/100)
}
