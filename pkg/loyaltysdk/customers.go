package loyaltysdk

import (
	"context"
	"net/url"
)

// LookupCustomer finds a store member by exactly one of user store code,
// phone number or email.
func (c *Client) LookupCustomer(
	ctx context.Context,
	params CustomerLookupParams,
	opts ...RequestOption,
) (*CustomerLookupResponse, error) {
	if err := validate(&params); err != nil {
		return nil, err
	}

	q := url.Values{}
	switch {
	case params.UserStoreCode != "":
		q.Set("userStoreCode", params.UserStoreCode)
	case params.PhoneNumber != "":
		q.Set("phoneNumber", params.PhoneNumber)
	default:
		q.Set("email", params.Email)
	}

	path := PathStores + "/" + url.PathEscape(params.StoreID) + "/customers/lookup?" + q.Encode()

	var out CustomerLookupResponse
	if err := c.Get(ctx, path, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}
