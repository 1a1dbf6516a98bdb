// Package bili fetches ticket project data from the show.bilibili.com
// ticket API.
package bili

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnreachable covers network errors and timeouts.
	ErrUnreachable = errors.New("provider unreachable")
	// ErrMalformed covers unparseable bodies and non-success API codes.
	ErrMalformed = errors.New("provider response malformed")
)

// envelope is the common wrapper around every API payload.
type envelope struct {
	ErrNo int             `json:"errno"`
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Data  json.RawMessage `json:"data"`
}

func (e *envelope) ok() bool {
	// Some endpoints report errno, others code. Zero means success on both.
	return e.ErrNo == 0 && e.Code == 0
}

// ProjectDetail is the project response. A project carries its SKUs in
// one of three ways: linked goods records, per-date session lookups, or
// a screen list embedded directly in this response.
type ProjectDetail struct {
	ID           json.Number   `json:"id"`
	Name         string        `json:"name"`
	LinkGoodsIDs []json.Number `json:"link_goods_ids"`
	SalesDates   []SalesDate   `json:"sales_dates"`
	ScreenList   []Screen      `json:"screen_list"`
}

type SalesDate struct {
	Date string `json:"date"`
}

// Screen is one sale group (a session, a tier, etc.) with its SKUs.
type Screen struct {
	Name       string   `json:"name"`
	TicketList []Ticket `json:"ticket_list"`
}

// Ticket is one purchasable SKU. Price is in cents.
type Ticket struct {
	Desc           string `json:"desc"`
	Price          int64  `json:"price"`
	SaleFlagNumber int    `json:"sale_flag_number"`
}

// LinkedGoods is a secondary goods record referenced by a project's
// link_goods_ids.
type LinkedGoods struct {
	Name       string   `json:"name"`
	ScreenList []Screen `json:"screen_list"`
}

func malformed(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(msg, args...))
}
