package loyaltysdk

import "context"

func (c *Client) GetSettings(ctx context.Context, opts ...RequestOption) (*LoyaltySettings, error) {
	var out LoyaltySettings
	if err := c.Get(ctx, PathSettings, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSettings applies a partial update and returns the full settings.
func (c *Client) UpdateSettings(
	ctx context.Context,
	req UpdateSettingsRequest,
	opts ...RequestOption,
) (*LoyaltySettings, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}

	var out LoyaltySettings
	if err := c.Put(ctx, PathSettings, req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}
