package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dvloznov/ownspend/internal/domain"
	"github.com/dvloznov/ownspend/internal/store"
	"github.com/dvloznov/ownspend/internal/store/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	FindAccountFunc   func(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error)
	CreateAccountFunc func(ctx context.Context, account *domain.Account) error
}

func (m *mockRepository) FindAccount(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
	return m.FindAccountFunc(ctx, ownerID, bankName, accountMask)
}

func (m *mockRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	return m.CreateAccountFunc(ctx, account)
}

func TestResolve_CreatesThenFinds(t *testing.T) {
	ctx := context.Background()
	r := New(inmemory.NewStore())

	first, err := r.Resolve(ctx, "o1", "Kotak", "X1415")
	require.NoError(t, err)
	assert.Equal(t, "Kotak X1415", first.DisplayName)
	assert.Equal(t, domain.AccountTypeSavings, first.Type)
	assert.True(t, first.IsActive)

	second, err := r.Resolve(ctx, "o1", "Kotak", "X1415")
	require.NoError(t, err)
	assert.Equal(t, first.AccountID, second.AccountID)
}

func TestResolve_UnknownDefaults(t *testing.T) {
	ctx := context.Background()
	r := New(inmemory.NewStore())

	tests := []struct {
		name     string
		bank     string
		mask     string
		wantBank string
		wantMask string
	}{
		{"both empty", "", "", domain.Unknown, domain.Unknown},
		{"no mask", "HDFC", "", "HDFC", domain.Unknown},
		{"blank bank", "  ", "XX1234", domain.Unknown, "XX1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := r.Resolve(ctx, "o1", tt.bank, tt.mask)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBank, acc.BankName)
			assert.Equal(t, tt.wantMask, acc.AccountMask)
		})
	}

	a, err := r.Resolve(ctx, "o1", "", "")
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "o1", domain.Unknown, domain.Unknown)
	require.NoError(t, err)
	assert.Equal(t, a.AccountID, b.AccountID)
}

func TestResolve_ConflictReturnsWinner(t *testing.T) {
	winner := &domain.Account{AccountID: "winner", OwnerID: "o1", BankName: "UCO", AccountMask: "XX3242"}
	finds := 0

	repo := &mockRepository{
		FindAccountFunc: func(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
			finds++
			if finds == 1 {
				return nil, store.ErrNotFound
			}
			return winner, nil
		},
		CreateAccountFunc: func(ctx context.Context, account *domain.Account) error {
			return store.ErrConflict
		},
	}

	acc, err := New(repo).Resolve(context.Background(), "o1", "UCO", "XX3242")
	require.NoError(t, err)
	assert.Equal(t, "winner", acc.AccountID)
	assert.Equal(t, 2, finds)
}

func TestResolve_PropagatesStoreFaults(t *testing.T) {
	boom := errors.New("db down")

	repo := &mockRepository{
		FindAccountFunc: func(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
			return nil, boom
		},
	}
	_, err := New(repo).Resolve(context.Background(), "o1", "UCO", "XX3242")
	assert.ErrorIs(t, err, boom)

	repo = &mockRepository{
		FindAccountFunc: func(ctx context.Context, ownerID, bankName, accountMask string) (*domain.Account, error) {
			return nil, store.ErrNotFound
		},
		CreateAccountFunc: func(ctx context.Context, account *domain.Account) error {
			return boom
		},
	}
	_, err = New(repo).Resolve(context.Background(), "o1", "UCO", "XX3242")
	assert.ErrorIs(t, err, boom)
}

func TestResolve_ConcurrentSingleAccount(t *testing.T) {
	ctx := context.Background()
	s := inmemory.NewStore()
	r := New(s)

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc, err := r.Resolve(ctx, "o1", "SBI", "XX1234")
			if err == nil {
				ids[i] = acc.AccountID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	accounts, err := s.ListAccounts(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}
