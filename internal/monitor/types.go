// Package monitor implements the sale-status monitoring engine: the
// subscription registry, the poll cycle, status normalization/diff and
// change fan-out.
package monitor

import (
	"context"
	"errors"

	"showbot/internal/provider/bili"
	kit "showbot/internal/transport"
)

var (
	ErrInvalidProjectID = errors.New("invalid project id")
	ErrNotEnabled       = errors.New("monitoring not enabled")
)

// SaleStatus is the human-readable availability of one SKU.
type SaleStatus string

const StatusUnknown SaleStatus = "unknown"

// TicketEntry is one SKU line of a project snapshot. Label is the sole
// identity across polls; there is no stable numeric SKU id in every
// provider shape.
type TicketEntry struct {
	Label  string
	Status SaleStatus
}

// ProjectSnapshot is the ordered canonical view of a project at one
// poll.
type ProjectSnapshot []TicketEntry

type ChangeKind int

const (
	KindBaseline ChangeKind = iota
	KindDelta
)

// Change is one per-SKU difference. Old is empty for Added entries.
type Change struct {
	Label string
	Old   SaleStatus
	New   SaleStatus
}

// ChangeEvent is produced per (project, cycle) and consumed immediately
// by the dispatcher.
type ChangeEvent struct {
	ProjectID   string
	ProjectName string
	Kind        ChangeKind
	Changes     []Change
}

// Fetcher is the provider port used by the normalizer.
type Fetcher interface {
	Project(ctx context.Context, projectID string) (*bili.ProjectDetail, error)
	Goods(ctx context.Context, goodsID string) (*bili.LinkedGoods, error)
	ProjectByDate(ctx context.Context, projectID, date string) ([]bili.Screen, error)
}

// Deliverer is the outbound message port (the notifier pipeline).
type Deliverer interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// ContextView is a point-in-time copy of one enabled subscription.
type ContextView struct {
	Projects []string
	Target   kit.ChatTarget
}

// HasTarget reports whether a delivery address was ever recorded.
func (v ContextView) HasTarget() bool { return v.Target.ChatID != 0 }
