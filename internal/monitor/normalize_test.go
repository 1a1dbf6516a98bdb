package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"showbot/internal/provider/bili"
	logx "showbot/pkg/logx"
)

func TestNormalizeShapePriority(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	// Project carries all three shapes at once; linked goods must win.
	f.projects["1001"] = &bili.ProjectDetail{
		Name:         "BW2025",
		LinkGoodsIDs: []json.Number{"7001"},
		SalesDates:   []bili.SalesDate{{Date: "2025-07-11"}},
		ScreenList: []bili.Screen{
			{Name: "flat", TicketList: []bili.Ticket{{Desc: "flat票", Price: 100, SaleFlagNumber: 2}}},
		},
	}
	f.goods["7001"] = &bili.LinkedGoods{
		ScreenList: []bili.Screen{
			{Name: "goods", TicketList: []bili.Ticket{{Desc: "goods票", Price: 12800, SaleFlagNumber: 2}}},
		},
	}
	f.byDate["1001|2025-07-11"] = []bili.Screen{
		{Name: "dated", TicketList: []bili.Ticket{{Desc: "dated票", Price: 100, SaleFlagNumber: 2}}},
	}

	name, snap, err := Normalize(context.Background(), f, "1001", logx.Nop())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if name != "BW2025" {
		t.Fatalf("name = %q", name)
	}
	if len(snap) != 1 || snap[0].Label != "goods goods票 ¥128" {
		t.Fatalf("snap = %+v, want only linked-goods entry", snap)
	}
}

func TestNormalizeDatedShape(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["1002"] = &bili.ProjectDetail{
		Name:       "CP展",
		SalesDates: []bili.SalesDate{{Date: "2025-07-11"}, {Date: "2025-07-12"}},
	}
	f.byDate["1002|2025-07-11"] = []bili.Screen{
		{Name: "全日票", TicketList: []bili.Ticket{{Desc: "A", Price: 12850, SaleFlagNumber: 2}}},
	}
	// The second date fails; partial results are acceptable.
	f.byDateErr["1002|2025-07-12"] = errors.New("boom")

	_, snap, err := Normalize(context.Background(), f, "1002", logx.Nop())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("snap = %+v, want 1 entry", snap)
	}
	if snap[0].Label != "2025-07-11 全日票 A ¥128.50" {
		t.Fatalf("label = %q", snap[0].Label)
	}
}

func TestNormalizeFlatShapeAndUnknownCode(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projects["1003"] = &bili.ProjectDetail{
		Name: "flat",
		ScreenList: []bili.Screen{
			{Name: "G", TicketList: []bili.Ticket{
				{Desc: "A", Price: 10000, SaleFlagNumber: 42},
				{Desc: "B", Price: 10000, SaleFlagNumber: 6},
			}},
		},
	}
	_, snap, err := Normalize(context.Background(), f, "1003", logx.Nop())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("snap = %+v", snap)
	}
	if snap[0].Status != StatusUnknown {
		t.Fatalf("code 42 → %q, want unknown", snap[0].Status)
	}
	if snap[1].Status != "low stock" {
		t.Fatalf("code 6 → %q", snap[1].Status)
	}
}

func TestNormalizeProjectFetchFailure(t *testing.T) {
	t.Parallel()
	f := newFakeFetcher()
	f.projectErr["1004"] = bili.ErrUnreachable
	_, _, err := Normalize(context.Background(), f, "1004", logx.Nop())
	if !errors.Is(err, bili.ErrUnreachable) {
		t.Fatalf("err = %v", err)
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cents int64
		want  string
	}{
		{10000, "100"},
		{12850, "128.50"},
		{50, "0.50"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := formatPrice(tt.cents); got != tt.want {
			t.Errorf("formatPrice(%d) = %q, want %q", tt.cents, got, tt.want)
		}
	}
}
