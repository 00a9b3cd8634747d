package loyaltysdk

import (
	"context"
	"net/url"
)

// Customer CRUD under /users.

func (c *Client) ListCustomers(ctx context.Context, opts ...RequestOption) ([]Customer, error) {
	var out []Customer
	if err := c.Get(ctx, PathUsers, &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetCustomer(ctx context.Context, id string, opts ...RequestOption) (*Customer, error) {
	var out Customer
	if err := c.Get(ctx, PathUsers+"/"+url.PathEscape(id), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCustomerByCode looks a customer up by their user code.
func (c *Client) GetCustomerByCode(ctx context.Context, code string, opts ...RequestOption) (*Customer, error) {
	var out Customer
	if err := c.Get(ctx, PathUsers+"/code/"+url.PathEscape(code), &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCustomerTransactions(ctx context.Context, userID string, opts ...RequestOption) ([]Transaction, error) {
	var out []Transaction
	if err := c.Get(ctx, PathUsers+"/"+url.PathEscape(userID)+"/transactions", &out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCustomer(ctx context.Context, req CreateCustomerRequest, opts ...RequestOption) (*Customer, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out Customer
	if err := c.Post(ctx, PathUsers, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateCustomer(
	ctx context.Context,
	id string,
	req UpdateCustomerRequest,
	opts ...RequestOption,
) (*Customer, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out Customer
	if err := c.Put(ctx, PathUsers+"/"+url.PathEscape(id), req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string, opts ...RequestOption) error {
	return c.Delete(ctx, PathUsers+"/"+url.PathEscape(id), nil, opts...)
}
