package query

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/aussiebroadwan/loyalty/pkg/slogx"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	// Extra attempts after the first, transient failures only.
	readRetries     = 3
	mutationRetries = 2
)

// dependents lists what a successful mutation of each resource invalidates.
// A transaction changes point balances and aggregate stats; a customer
// change moves the analytics too.
var dependents = map[Resource][]Resource{
	Transactions: {Transactions, Users, Analytics},
	Users:        {Users, Analytics},
	Stores:       {Stores},
	Settings:     {Settings},
}

// Service exposes typed queries and mutations over the API client.
type Service struct {
	client *loyaltysdk.Client
	cache  *Cache
	log    *slog.Logger

	// BackOff builds the delay policy for retried calls; nil uses
	// loyaltysdk.DefaultBackOff
	BackOff func() backoff.BackOff
}

func NewService(client *loyaltysdk.Client, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{client: client, cache: cache, log: log}
}

// Cache returns the cache backing the service.
func (s *Service) Cache() *Cache { return s.cache }

func (s *Service) backOff() backoff.BackOff {
	if s.BackOff == nil {
		return nil
	}
	return s.BackOff()
}

// read fetches key through the cache, retrying transient failures.
func read[T any](ctx context.Context, s *Service, key Key, retries uint64, call func(context.Context, ...loyaltysdk.RequestOption) (T, error)) (T, error) {
	return Fetch(ctx, s.cache, key, func(ctx context.Context) (T, error) {
		var out T
		err := loyaltysdk.Retry(ctx, s.backOff(), retries, func() (err error) {
			out, err = call(ctx, loyaltysdk.Silent())
			return err
		})
		if err != nil {
			s.client.Notify(ctx, err)
		}
		return out, err
	})
}

// mutate runs a mutation with a stable idempotency key across retries and
// invalidates the resources derived from r on success.
func mutate[T any](ctx context.Context, s *Service, r Resource, call func(context.Context, ...loyaltysdk.RequestOption) (T, error)) (T, error) {
	key := uuid.NewString()
	var out T
	err := loyaltysdk.Retry(ctx, s.backOff(), mutationRetries, func() (err error) {
		out, err = call(ctx, loyaltysdk.Silent(), loyaltysdk.WithIdempotencyKey(key))
		return err
	})
	if err != nil {
		s.client.Notify(ctx, err)
		return out, err
	}

	s.cache.Invalidate(dependents[r]...)
	slogx.FromContext(ctx, s.log).Debug("mutation invalidated cache", "resource", r, "idempotency_key", key)
	return out, nil
}

// ============================================================================
// Customers
// ============================================================================

func (s *Service) Users(ctx context.Context) ([]loyaltysdk.Customer, error) {
	return read(ctx, s, Key{Resource: Users}, readRetries, s.client.ListCustomers)
}

func (s *Service) User(ctx context.Context, id string) (*loyaltysdk.Customer, error) {
	return read(ctx, s, Key{Users, "id:" + id}, readRetries,
		func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Customer, error) {
			return s.client.GetCustomer(ctx, id, opts...)
		})
}

// UserByCode is never retried: an unknown code is an expected answer, not a
// failure worth repeating.
func (s *Service) UserByCode(ctx context.Context, code string) (*loyaltysdk.Customer, error) {
	return read(ctx, s, Key{Users, "code:" + code}, 0,
		func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Customer, error) {
			return s.client.GetCustomerByCode(ctx, code, opts...)
		})
}

// UserTransactions lists a customer's transactions. It is cached as
// transaction data so new transactions invalidate it.
func (s *Service) UserTransactions(ctx context.Context, userID string) ([]loyaltysdk.Transaction, error) {
	return read(ctx, s, Key{Transactions, "user:" + userID}, readRetries,
		func(ctx context.Context, opts ...loyaltysdk.RequestOption) ([]loyaltysdk.Transaction, error) {
			return s.client.ListCustomerTransactions(ctx, userID, opts...)
		})
}

func (s *Service) CreateUser(ctx context.Context, req loyaltysdk.CreateCustomerRequest) (*loyaltysdk.Customer, error) {
	return mutate(ctx, s, Users, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Customer, error) {
		return s.client.CreateCustomer(ctx, req, opts...)
	})
}

func (s *Service) UpdateUser(ctx context.Context, id string, req loyaltysdk.UpdateCustomerRequest) (*loyaltysdk.Customer, error) {
	return mutate(ctx, s, Users, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Customer, error) {
		return s.client.UpdateCustomer(ctx, id, req, opts...)
	})
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	_, err := mutate(ctx, s, Users, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (struct{}, error) {
		return struct{}{}, s.client.DeleteCustomer(ctx, id, opts...)
	})
	if err == nil {
		s.cache.Remove(Key{Users, "id:" + id})
	}
	return err
}

// ============================================================================
// Transactions
// ============================================================================

func (s *Service) Transactions(ctx context.Context) ([]loyaltysdk.Transaction, error) {
	return read(ctx, s, Key{Resource: Transactions}, readRetries, s.client.ListTransactions)
}

func (s *Service) Transaction(ctx context.Context, id string) (*loyaltysdk.Transaction, error) {
	return read(ctx, s, Key{Transactions, "id:" + id}, readRetries,
		func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Transaction, error) {
			return s.client.GetTransaction(ctx, id, opts...)
		})
}

func (s *Service) CreateTransaction(ctx context.Context, req loyaltysdk.CreateTransactionRequest) (*loyaltysdk.Transaction, error) {
	return mutate(ctx, s, Transactions, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Transaction, error) {
		return s.client.CreateTransaction(ctx, req, opts...)
	})
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, req loyaltysdk.UpdateTransactionRequest) (*loyaltysdk.Transaction, error) {
	return mutate(ctx, s, Transactions, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Transaction, error) {
		return s.client.UpdateTransaction(ctx, id, req, opts...)
	})
}

func (s *Service) CancelTransaction(ctx context.Context, id string) (*loyaltysdk.Transaction, error) {
	return mutate(ctx, s, Transactions, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Transaction, error) {
		return s.client.CancelTransaction(ctx, id, opts...)
	})
}

// ============================================================================
// Stores
// ============================================================================

func (s *Service) Stores(ctx context.Context) ([]loyaltysdk.Store, error) {
	return read(ctx, s, Key{Resource: Stores}, readRetries, s.client.ListStores)
}

func (s *Service) Store(ctx context.Context, id string) (*loyaltysdk.Store, error) {
	return read(ctx, s, Key{Stores, "id:" + id}, readRetries,
		func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Store, error) {
			return s.client.GetStore(ctx, id, opts...)
		})
}

func (s *Service) CreateStore(ctx context.Context, req loyaltysdk.StoreRequest) (*loyaltysdk.Store, error) {
	return mutate(ctx, s, Stores, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Store, error) {
		return s.client.CreateStore(ctx, req, opts...)
	})
}

func (s *Service) UpdateStore(ctx context.Context, id string, req loyaltysdk.StoreRequest) (*loyaltysdk.Store, error) {
	return mutate(ctx, s, Stores, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.Store, error) {
		return s.client.UpdateStore(ctx, id, req, opts...)
	})
}

func (s *Service) DeleteStore(ctx context.Context, id string) error {
	_, err := mutate(ctx, s, Stores, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (struct{}, error) {
		return struct{}{}, s.client.DeleteStore(ctx, id, opts...)
	})
	if err == nil {
		s.cache.Remove(Key{Stores, "id:" + id})
	}
	return err
}

// ============================================================================
// Settings, analytics, lookup
// ============================================================================

func (s *Service) Settings(ctx context.Context) (*loyaltysdk.LoyaltySettings, error) {
	return read(ctx, s, Key{Resource: Settings}, readRetries, s.client.GetSettings)
}

func (s *Service) UpdateSettings(ctx context.Context, req loyaltysdk.UpdateSettingsRequest) (*loyaltysdk.LoyaltySettings, error) {
	return mutate(ctx, s, Settings, func(ctx context.Context, opts ...loyaltysdk.RequestOption) (*loyaltysdk.LoyaltySettings, error) {
		return s.client.UpdateSettings(ctx, req, opts...)
	})
}

func (s *Service) Analytics(ctx context.Context) (*loyaltysdk.Analytics, error) {
	return read(ctx, s, Key{Resource: Analytics}, readRetries, s.client.GetAnalytics)
}

// Lookup finds a store member at the till. It always goes to the API since
// the caller acts on the current balance.
func (s *Service) Lookup(ctx context.Context, params loyaltysdk.CustomerLookupParams) (*loyaltysdk.CustomerLookupResponse, error) {
	var out *loyaltysdk.CustomerLookupResponse
	err := loyaltysdk.Retry(ctx, s.backOff(), readRetries, func() (err error) {
		out, err = s.client.LookupCustomer(ctx, params, loyaltysdk.Silent())
		return err
	})
	if err != nil {
		s.client.Notify(ctx, err)
		return nil, err
	}
	return out, nil
}
