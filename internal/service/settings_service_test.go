package service

import (
	"context"
	"testing"
	"time"

	"github.com/dushixiang/ladder/internal/models"
	"github.com/dushixiang/ladder/internal/repo"
	"github.com/dushixiang/ladder/internal/xe"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestSettingsService(t *testing.T) (*SettingsService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewSettingsService(db, zap.NewNop()), db
}

func validSettingsRequest(credentialID string) SettingsRequest {
	return SettingsRequest{
		Goods:        "ltc",
		Currency:     "usdt",
		Profit:       0.01,
		Fee:          0.001,
		FirstStep:    0.05,
		Coverage:     0.20,
		Martingale:   0.10,
		Steps:        4,
		Deposit:      100,
		DepositInc:   0.5,
		CredentialID: credentialID,
	}
}

func TestSettingsService_CreateSettings(t *testing.T) {
	s, _ := newTestSettingsService(t)
	ctx := context.Background()

	cred, err := s.CreateCredential(ctx, CredentialRequest{Name: "main", APIKey: "k", Secret: "s"})
	require.NoError(t, err)

	item, err := s.CreateSettings(ctx, validSettingsRequest(cred.ID))
	require.NoError(t, err)
	assert.False(t, item.Enabled)
	assert.Equal(t, "LTCUSDT", item.Symbol())

	got, err := s.GetSettings(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
}

func TestSettingsService_CreateSettings_Invalid(t *testing.T) {
	s, _ := newTestSettingsService(t)
	ctx := context.Background()

	cred, err := s.CreateCredential(ctx, CredentialRequest{Name: "main", APIKey: "k", Secret: "s"})
	require.NoError(t, err)

	// 第一档折价不能超过覆盖深度
	req := validSettingsRequest(cred.ID)
	req.FirstStep = 0.30
	_, err = s.CreateSettings(ctx, req)
	assert.ErrorIs(t, err, xe.ErrInvalidParams)

	// 凭据不存在
	_, err = s.CreateSettings(ctx, validSettingsRequest("missing"))
	assert.ErrorIs(t, err, xe.ErrCredentialNotFound)
}

func TestSettingsService_DeleteSettings_ActiveRound(t *testing.T) {
	s, db := newTestSettingsService(t)
	ctx := context.Background()

	cred, err := s.CreateCredential(ctx, CredentialRequest{Name: "main", APIKey: "k", Secret: "s"})
	require.NoError(t, err)
	item, err := s.CreateSettings(ctx, validSettingsRequest(cred.ID))
	require.NoError(t, err)

	roundRepo := repo.NewRoundRepo(db)
	round := &models.Round{
		ID:         ulid.Make().String(),
		SettingsID: item.ID,
		Reason:     models.RoundActive,
		StartedAt:  time.Now(),
	}
	require.NoError(t, roundRepo.Create(ctx, round))

	// 进行中回合阻止删除
	assert.ErrorIs(t, s.DeleteSettings(ctx, item.ID), xe.ErrSettingsInUse)

	require.NoError(t, roundRepo.Finish(ctx, round.ID, models.RoundDone, models.Round{}))
	require.NoError(t, s.DeleteSettings(ctx, item.ID))

	_, err = s.GetSettings(ctx, item.ID)
	assert.ErrorIs(t, err, xe.ErrSettingsNotFound)
}

func TestSettingsService_DeleteCredential_InUse(t *testing.T) {
	s, _ := newTestSettingsService(t)
	ctx := context.Background()

	cred, err := s.CreateCredential(ctx, CredentialRequest{Name: "main", APIKey: "k", Secret: "s"})
	require.NoError(t, err)
	item, err := s.CreateSettings(ctx, validSettingsRequest(cred.ID))
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteCredential(ctx, cred.ID), xe.ErrCredentialInUse)

	require.NoError(t, s.DeleteSettings(ctx, item.ID))
	require.NoError(t, s.DeleteCredential(ctx, cred.ID))

	assert.ErrorIs(t, s.DeleteCredential(ctx, cred.ID), xe.ErrCredentialNotFound)
}

func TestSettingsService_SetEnabled(t *testing.T) {
	s, db := newTestSettingsService(t)
	ctx := context.Background()

	cred, err := s.CreateCredential(ctx, CredentialRequest{Name: "main", APIKey: "k", Secret: "s"})
	require.NoError(t, err)
	item, err := s.CreateSettings(ctx, validSettingsRequest(cred.ID))
	require.NoError(t, err)

	require.NoError(t, s.SetEnabled(ctx, item.ID, true))

	enabled, err := repo.NewSettingsRepo(db).FindEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, item.ID, enabled[0].ID)

	assert.ErrorIs(t, s.SetEnabled(ctx, "missing", true), xe.ErrSettingsNotFound)
}
