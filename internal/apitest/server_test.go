package apitest_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/loyalty/internal/apitest"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestCustomerSubresourceRoutes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := apitest.New(t)

	client := loyaltysdk.NewClient(api.URL)
	client.Logger = slogx.Discard()
	client.SetTokens(api.Login(apitest.AdminEmail).Tokens())

	codes := api.CustomerCodes()
	require.NotEmpty(t, codes)

	byCode, err := client.GetCustomerByCode(ctx, codes[0])
	require.NoError(t, err)
	require.Equal(t, codes[0], byCode.UserCode)

	txs, err := client.ListCustomerTransactions(ctx, byCode.ID)
	require.NoError(t, err)
	require.NotNil(t, txs)

	err = client.Get(ctx, "/users/"+byCode.ID+"/rewards", nil, loyaltysdk.Silent())
	require.Equal(t, loyaltysdk.KindNotFound, loyaltysdk.Classify(err))

	profile, err := client.GetProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, apitest.AdminEmail, profile.Email)
}
