package repo

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRound(t *testing.T, r *RoundRepo, round models.Round) models.Round {
	t.Helper()
	if round.ID == "" {
		round.ID = ulid.Make().String()
	}
	if round.StartedAt.IsZero() {
		round.StartedAt = time.Now()
	}
	require.NoError(t, r.Create(context.Background(), &round))
	return round
}

func TestRoundRepo_FindByReason(t *testing.T) {
	db := newTestDB(t)
	r := NewRoundRepo(db)
	ctx := context.Background()

	active, err := r.FindActiveBySettingsID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, active)

	seedRound(t, r, models.Round{SettingsID: "s1", Reason: models.RoundDone})
	want := seedRound(t, r, models.Round{SettingsID: "s1", Reason: models.RoundActive})
	seedRound(t, r, models.Round{SettingsID: "s2", Reason: models.RoundActive})

	active, err = r.FindActiveBySettingsID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, want.ID, active.ID)

	archive, err := r.FindArchiveBySettingsID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, archive)
}

func TestRoundRepo_NextFillSeq(t *testing.T) {
	db := newTestDB(t)
	r := NewRoundRepo(db)
	ctx := context.Background()

	round := seedRound(t, r, models.Round{SettingsID: "s1", Reason: models.RoundActive})

	seq1, err := r.NextFillSeq(ctx, round.ID)
	require.NoError(t, err)
	seq2, err := r.NextFillSeq(ctx, round.ID)
	require.NoError(t, err)
	seq3, err := r.NextFillSeq(ctx, round.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, seq1)
	assert.Equal(t, 2, seq2)
	assert.Equal(t, 3, seq3)
}

func TestRoundRepo_Finish(t *testing.T) {
	db := newTestDB(t)
	r := NewRoundRepo(db)
	ctx := context.Background()

	round := seedRound(t, r, models.Round{SettingsID: "s1", Reason: models.RoundActive})

	stats := models.Round{
		Income:      1.5,
		GoodsIn:     3,
		GoodsOut:    3,
		CurrencyIn:  300,
		CurrencyOut: 310,
	}
	require.NoError(t, r.Finish(ctx, round.ID, models.RoundDone, stats))

	got, err := r.FindById(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundDone, got.Reason)
	assert.NotNil(t, got.EndedAt)
	assert.InDelta(t, 1.5, got.Income, 1e-9)
	assert.InDelta(t, 300, got.CurrencyIn, 1e-9)

	// 结算后的回合不会再被选为活跃回合
	active, err := r.FindActiveBySettingsID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRoundRepo_ArchiveAccumulators(t *testing.T) {
	db := newTestDB(t)
	r := NewRoundRepo(db)
	ctx := context.Background()

	arch := seedRound(t, r, models.Round{SettingsID: "s1", Reason: models.RoundArchive})

	require.NoError(t, r.AddArchiveStock(ctx, arch.ID, 2, 200))
	require.NoError(t, r.AddArchiveStock(ctx, arch.ID, 1, 90))
	require.NoError(t, r.AddGoodsOut(ctx, arch.ID, 0.5, 60))

	got, err := r.FindById(ctx, arch.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3, got.GoodsIn, 1e-9)
	assert.InDelta(t, 290, got.CurrencyIn, 1e-9)
	assert.InDelta(t, 0.5, got.GoodsOut, 1e-9)
	assert.InDelta(t, 60, got.CurrencyOut, 1e-9)
}
