package service

import (
	"context"
	"errors"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestIdentityResolver_EmailFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockAccountFinder(ctrl)
	ctx := context.Background()

	want := &domain.Account{ID: uuid.New(), Email: "alice@example.com"}
	finder.EXPECT().FindAccountByEmail(ctx, "alice@example.com").Return(want, nil)

	got, err := NewIdentityResolver("BD").Resolve(ctx, finder, "  Alice@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIdentityResolver_FallsBackToNormalizedPhone(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockAccountFinder(ctrl)
	ctx := context.Background()

	want := &domain.Account{ID: uuid.New(), Phone: "+8801712345678"}
	gomock.InOrder(
		finder.EXPECT().FindAccountByEmail(ctx, "01712345678").Return(nil, nil),
		finder.EXPECT().FindAccountByPhone(ctx, "+8801712345678").Return(want, nil),
	)

	got, err := NewIdentityResolver("BD").Resolve(ctx, finder, "01712345678")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIdentityResolver_NoMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockAccountFinder(ctrl)
	ctx := context.Background()

	finder.EXPECT().FindAccountByEmail(ctx, "nobody@example.com").Return(nil, nil)
	finder.EXPECT().FindAccountByPhone(ctx, "nobody@example.com").Return(nil, nil)

	got, err := NewIdentityResolver("").Resolve(ctx, finder, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdentityResolver_BlankIdentifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockAccountFinder(ctrl)

	got, err := NewIdentityResolver("BD").Resolve(context.Background(), finder, "   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIdentityResolver_StoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	finder := mocks.NewMockAccountFinder(ctrl)
	ctx := context.Background()

	boom := errors.New("connection reset")
	finder.EXPECT().FindAccountByEmail(ctx, gomock.Any()).Return(nil, boom)

	_, err := NewIdentityResolver("BD").Resolve(ctx, finder, "x@example.com")
	assert.ErrorIs(t, err, boom)
}
