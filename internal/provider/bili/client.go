package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://show.bilibili.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	// Response bodies are small JSON documents; cap reads defensively.
	maxBodyBytes = 4 << 20
)

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the ticket API. All methods honor ctx for cancellation
// and carry the configured per-request timeout.
type Client struct {
	hc      *http.Client
	baseURL string
	ua      string
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: base,
		ua:      ua,
	}
}

// Project fetches the project detail document.
func (c *Client) Project(ctx context.Context, projectID string) (*ProjectDetail, error) {
	q := url.Values{}
	q.Set("version", "134")
	q.Set("id", projectID)
	var out ProjectDetail
	if err := c.getJSON(ctx, "/api/ticket/project/getV2", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Goods fetches one linked-goods record.
func (c *Client) Goods(ctx context.Context, goodsID string) (*LinkedGoods, error) {
	q := url.Values{}
	q.Set("goods_id", goodsID)
	var out LinkedGoods
	if err := c.getJSON(ctx, "/api/ticket/linkgoods/info", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProjectByDate fetches the sale groups of a project for one sale date.
func (c *Client) ProjectByDate(ctx context.Context, projectID, date string) ([]Screen, error) {
	q := url.Values{}
	q.Set("id", projectID)
	q.Set("date", date)
	var out struct {
		ScreenList []Screen `json:"screen_list"`
	}
	if err := c.getJSON(ctx, "/api/ticket/project/infoByDate", q, &out); err != nil {
		return nil, err
	}
	return out.ScreenList, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return malformed("http %d for %s", resp.StatusCode, path)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return malformed("decode envelope for %s: %v", path, err)
	}
	if !env.ok() {
		return malformed("api code errno=%d code=%d msg=%q for %s", env.ErrNo, env.Code, env.Msg, path)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return malformed("empty data for %s", path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return malformed("decode data for %s: %v", path, err)
	}
	return nil
}
