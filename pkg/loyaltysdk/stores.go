package loyaltysdk

import (
	"context"
	"net/url"
)

func (c *Client) ListStores(ctx context.Context, opts ...RequestOption) ([]Store, error) {
	var out []Store
	if err := c.Get(ctx, PathStores, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStore(ctx context.Context, id string, opts ...RequestOption) (*Store, error) {
	var out Store
	if err := c.Get(ctx, PathStores+"/"+url.PathEscape(id), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateStore(ctx context.Context, req StoreRequest, opts ...RequestOption) (*Store, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out Store
	if err := c.Post(ctx, PathStores, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStore(ctx context.Context, id string, req StoreRequest, opts ...RequestOption) (*Store, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out Store
	if err := c.Put(ctx, PathStores+"/"+url.PathEscape(id), req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStore(ctx context.Context, id string, opts ...RequestOption) error {
	return c.Delete(ctx, PathStores+"/"+url.PathEscape(id), nil, opts...)
}
