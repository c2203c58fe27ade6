package offer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"librarian/internal/clock"
	"librarian/internal/storage"
	"librarian/internal/storage/stubs"
)

func newTestOffers(t *testing.T) (*Service, *clock.Fake) {
	t.Helper()

	clk := &clock.Fake{Millis: 1_000}
	return New(stubs.NewMockDB(), clk, zap.NewNop()), clk
}

func TestAddOffer(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestOffers(t)

	created, err := svc.AddOffer(ctx, Request{
		Title:    "Foundation",
		Author:   "Isaac Asimov",
		Proposer: "paul",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, clk.Now(), created.OfferedAt)
	assert.False(t, created.IsPurchased)

	got, err := svc.GetOffer(ctx, created.UID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
}

func TestAddOffer_RequiresTitle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestOffers(t)

	_, err := svc.AddOffer(ctx, Request{Proposer: "paul"})
	assert.Error(t, err)
}

func TestGetOffer_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestOffers(t)

	_, err := svc.GetOffer(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrOfferNotFound)
}

func TestListOffers_ByProposer(t *testing.T) {
	ctx := context.Background()
	svc, clk := newTestOffers(t)

	for _, r := range []Request{
		{Title: "Foundation", Proposer: "paul"},
		{Title: "Hyperion", Proposer: "leto"},
		{Title: "Solaris", Proposer: "paul"},
	} {
		_, err := svc.AddOffer(ctx, r)
		require.NoError(t, err)
		clk.Millis++
	}

	offers, err := svc.ListOffers(ctx, storage.OfferFilter{Proposer: "paul"})
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "Solaris", offers[0].Title, "newest first")
}
