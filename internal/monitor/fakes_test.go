package monitor

import (
	"context"
	"errors"
	"sync"

	"showbot/internal/provider/bili"
	kit "showbot/internal/transport"
)

// fakeFetcher serves canned provider responses and counts calls.
type fakeFetcher struct {
	mu sync.Mutex

	projects map[string]*bili.ProjectDetail
	goods    map[string]*bili.LinkedGoods
	byDate   map[string][]bili.Screen // key: projectID + "|" + date

	projectErr map[string]error
	goodsErr   map[string]error
	byDateErr  map[string]error

	projectCalls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		projects:     map[string]*bili.ProjectDetail{},
		goods:        map[string]*bili.LinkedGoods{},
		byDate:       map[string][]bili.Screen{},
		projectErr:   map[string]error{},
		goodsErr:     map[string]error{},
		byDateErr:    map[string]error{},
		projectCalls: map[string]int{},
	}
}

func (f *fakeFetcher) Project(ctx context.Context, id string) (*bili.ProjectDetail, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projectCalls[id]++
	if err := f.projectErr[id]; err != nil {
		return nil, err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, errors.New("no such project")
	}
	return p, nil
}

func (f *fakeFetcher) Goods(ctx context.Context, id string) (*bili.LinkedGoods, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.goodsErr[id]; err != nil {
		return nil, err
	}
	g, ok := f.goods[id]
	if !ok {
		return nil, errors.New("no such goods")
	}
	return g, nil
}

func (f *fakeFetcher) ProjectByDate(ctx context.Context, id, date string) ([]bili.Screen, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	key := id + "|" + date
	if err := f.byDateErr[key]; err != nil {
		return nil, err
	}
	screens, ok := f.byDate[key]
	if !ok {
		return nil, errors.New("no such date")
	}
	return screens, nil
}

func (f *fakeFetcher) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.projectCalls[id]
}

// singleSKU builds a flat-shape project with one SKU.
func singleSKU(name, group, desc string, priceCents int64, code int) *bili.ProjectDetail {
	return &bili.ProjectDetail{
		Name: name,
		ScreenList: []bili.Screen{
			{Name: group, TicketList: []bili.Ticket{{Desc: desc, Price: priceCents, SaleFlagNumber: code}}},
		},
	}
}

// fakeDeliverer records every notification it receives.
type fakeDeliverer struct {
	mu   sync.Mutex
	sent []kit.Notification
	err  error
}

func (d *fakeDeliverer) Notify(ctx context.Context, n kit.Notification) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *fakeDeliverer) all() []kit.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]kit.Notification(nil), d.sent...)
}

func (d *fakeDeliverer) reset() {
	d.mu.Lock()
	d.sent = nil
	d.mu.Unlock()
}
