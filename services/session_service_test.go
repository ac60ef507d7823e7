// services/session_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"player-identity-system/models"
	"player-identity-system/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)
	clock := fakeClock()
	svc := NewSessionService(db, clock, &stubResolver{})

	profile := seedProfile(t, db, "AAAAAAA", 5)
	raw := utils.NewRawToken()

	sess, err := svc.Create(db, profile.ID, raw, "", ClientMeta{IP: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)

	// Only the hash is persisted.
	assert.Equal(t, utils.HashToken(raw), sess.TokenHash)
	var count int64
	require.NoError(t, db.Model(&models.Session{}).Where("token_hash = ?", raw).Count(&count).Error)
	assert.Zero(t, count)

	got, err := svc.Validate(raw)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, profile.ID, got.ProfileID)

	_, err = svc.Validate("")
	assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))

	_, err = svc.Validate("not-a-real-token")
	assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))

	clock.Advance(svc.TTL + time.Minute)
	_, err = svc.Validate(raw)
	assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))
}

func TestRefreshExtendsExpiry(t *testing.T) {
	db := testDB(t)
	clock := fakeClock()
	svc := NewSessionService(db, clock, &stubResolver{})

	profile := seedProfile(t, db, "AAAAAAA", 5)
	raw := utils.NewRawToken()
	sess, err := svc.Create(db, profile.ID, raw, "", ClientMeta{})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	refreshed, err := svc.Refresh(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(sess.ExpiresAt))
}

func TestRefreshAfterLogout(t *testing.T) {
	db := testDB(t)
	clock := fakeClock()
	svc := NewSessionService(db, clock, &stubResolver{})

	profile := seedProfile(t, db, "AAAAAAA", 5)
	raw := utils.NewRawToken()
	sess, err := svc.Create(db, profile.ID, raw, "", ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(sess.ID))
	// Idempotent.
	require.NoError(t, svc.Revoke(sess.ID))

	_, err = svc.Refresh(context.Background(), raw)
	assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))
}

func TestRefreshExternalSession(t *testing.T) {
	db := testDB(t)
	profile := seedProfile(t, db, "AAAAAAA", 5)

	t.Run("revalidates with the authority", func(t *testing.T) {
		resolver := &stubResolver{identity: &Identity{UserID: "ext-1"}}
		svc := NewSessionService(db, fakeClock(), resolver)
		raw := utils.NewRawToken()
		_, err := svc.Create(db, profile.ID, raw, "ext-1", ClientMeta{})
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), raw)
		require.NoError(t, err)
		assert.Equal(t, 1, resolver.calls)
	})

	t.Run("authority unreachable blocks refresh", func(t *testing.T) {
		svc := NewSessionService(db, fakeClock(), &stubResolver{err: assert.AnError})
		raw := utils.NewRawToken()
		_, err := svc.Create(db, profile.ID, raw, "ext-1", ClientMeta{})
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), raw)
		assert.Equal(t, utils.KindUpstreamIdentity, utils.KindOf(err))
	})

	t.Run("rejected credential", func(t *testing.T) {
		svc := NewSessionService(db, fakeClock(), &stubResolver{})
		raw := utils.NewRawToken()
		_, err := svc.Create(db, profile.ID, raw, "ext-1", ClientMeta{})
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), raw)
		assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))
	})

	t.Run("user mismatch never rebinds", func(t *testing.T) {
		svc := NewSessionService(db, fakeClock(), &stubResolver{identity: &Identity{UserID: "ext-other"}})
		raw := utils.NewRawToken()
		sess, err := svc.Create(db, profile.ID, raw, "ext-1", ClientMeta{})
		require.NoError(t, err)

		_, err = svc.Refresh(context.Background(), raw)
		assert.Equal(t, utils.KindUnauthenticated, utils.KindOf(err))

		var reloaded models.Session
		require.NoError(t, db.First(&reloaded, "id = ?", sess.ID).Error)
		assert.Equal(t, "ext-1", reloaded.ExternalIdentityID)
	})
}
