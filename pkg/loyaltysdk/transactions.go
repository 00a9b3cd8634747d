package loyaltysdk

import (
	"context"
	"net/url"
)

func (c *Client) ListTransactions(ctx context.Context, opts ...RequestOption) ([]Transaction, error) {
	var out []Transaction
	if err := c.Get(ctx, PathTransaction, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTransaction(ctx context.Context, id string, opts ...RequestOption) (*Transaction, error) {
	var out Transaction
	if err := c.Get(ctx, PathTransaction+"/"+url.PathEscape(id), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransaction records a point-earning or redemption transaction.
// Points are computed by the API.
func (c *Client) CreateTransaction(
	ctx context.Context,
	req CreateTransactionRequest,
	opts ...RequestOption,
) (*Transaction, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out Transaction
	if err := c.Post(ctx, PathTransaction, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTransaction(
	ctx context.Context,
	id string,
	req UpdateTransactionRequest,
	opts ...RequestOption,
) (*Transaction, error) {
	var out Transaction
	if err := c.Put(ctx, PathTransaction+"/"+url.PathEscape(id), req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTransaction reverses a transaction's point effect.
func (c *Client) CancelTransaction(ctx context.Context, id string, opts ...RequestOption) (*Transaction, error) {
	var out Transaction
	if err := c.Post(ctx, PathTransaction+"/"+url.PathEscape(id)+"/cancel", nil, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}
