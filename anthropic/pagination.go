package anthropic

import (
	"context"
	"strconv"

	"github.com/lgc202/anthropic-kit/httpx"
)

// ListParams are the cursor parameters shared by all list endpoints.
// AfterID and BeforeID are mutually exclusive; the server rejects both.
type ListParams struct {
	Limit    int
	AfterID  string
	BeforeID string
}

func (p ListParams) requestOptions() []httpx.RequestOption {
	var opts []httpx.RequestOption
	if p.Limit > 0 {
		opts = append(opts, httpx.WithQueryParam("limit", strconv.Itoa(p.Limit)))
	}
	if p.AfterID != "" {
		opts = append(opts, httpx.WithQueryParam("after_id", p.AfterID))
	}
	if p.BeforeID != "" {
		opts = append(opts, httpx.WithQueryParam("before_id", p.BeforeID))
	}
	return opts
}

// Page is one page of a cursor-paginated list.
type Page[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	FirstID string `json:"first_id"`
	LastID  string `json:"last_id"`

	client *Client
	path   string
	params ListParams
	opts   []httpx.RequestOption
}

// listPage fetches one page from a cursor-paginated endpoint.
func listPage[T any](ctx context.Context, c *Client, path string, params ListParams, opts ...httpx.RequestOption) (*Page[T], error) {
	var page Page[T]
	reqOpts := append(params.requestOptions(), opts...)
	if err := c.requestJSON(ctx, "GET", path, nil, &page, reqOpts...); err != nil {
		return nil, err
	}
	page.client = c
	page.path = path
	page.params = params
	page.opts = opts
	return &page, nil
}

// NextPage fetches the next page in the direction the listing started, or
// nil when exhausted. A walk opened with BeforeID keeps going backward from
// FirstID; everything else pages forward from LastID.
func (p *Page[T]) NextPage(ctx context.Context) (*Page[T], error) {
	if !p.HasMore {
		return nil, nil
	}
	params := p.params
	if p.params.BeforeID != "" {
		if p.FirstID == "" {
			return nil, nil
		}
		params.BeforeID = p.FirstID
		params.AfterID = ""
	} else {
		if p.LastID == "" {
			return nil, nil
		}
		params.AfterID = p.LastID
		params.BeforeID = ""
	}
	return listPage[T](ctx, p.client, p.path, params, p.opts...)
}

// All walks on from this page and collects every remaining item.
func (p *Page[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for page := p; page != nil; {
		out = append(out, page.Data...)
		next, err := page.NextPage(ctx)
		if err != nil {
			return out, err
		}
		page = next
	}
	return out, nil
}
