package loyaltysdk

import "context"

func (c *Client) GetAnalytics(ctx context.Context, opts ...RequestOption) (*Analytics, error) {
	var out Analytics
	if err := c.Get(ctx, PathAnalytics, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}
