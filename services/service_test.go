// services/service_test.go
package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"player-identity-system/models"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Profile{},
		&models.Account{},
		&models.Nonce{},
		&models.Session{},
		&models.Referral{},
	))
	return db
}

// seedProfile creates a profile plus its referral code row, mirroring what
// signup does.
func seedProfile(t *testing.T, db *gorm.DB, code string, maxReferrals int) *models.Profile {
	t.Helper()
	profile := &models.Profile{
		DisplayName:  "p-" + code,
		ReferralCode: code,
		MaxReferrals: maxReferrals,
	}
	require.NoError(t, db.Create(profile).Error)
	require.NoError(t, db.Create(&models.Referral{Code: code, ReferrerProfileID: profile.ID}).Error)
	return profile
}

type stubResolver struct {
	identity *Identity
	err      error
	calls    int
}

func (s *stubResolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	s.calls++
	return s.identity, s.err
}

func fakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClock()
}
