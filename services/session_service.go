// services/session_service.go
package services

import (
	"context"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"player-identity-system/models"
	"player-identity-system/utils"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// ClientMeta is the request metadata persisted alongside a session.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// SessionService issues, validates, refreshes and revokes sessions. The
// session TTL is a long window (days) so players are not re-prompted to
// sign mid-session; refresh is caller-initiated.
type SessionService struct {
	DB       *gorm.DB
	Clock    clockwork.Clock
	Identity IdentityResolver
	TTL      time.Duration
}

func NewSessionService(db *gorm.DB, clock clockwork.Clock, identity IdentityResolver) *SessionService {
	ttlHours := 168
	if v := os.Getenv("SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttlHours = n
		}
	}
	return &SessionService{
		DB:       db,
		Clock:    clock,
		Identity: identity,
		TTL:      time.Duration(ttlHours) * time.Hour,
	}
}

// Create stores a new session under the one-way hash of rawToken. The raw
// value is never persisted. Runs against db so callers can compose it into
// a larger transaction.
func (s *SessionService) Create(db *gorm.DB, profileID, rawToken, externalIdentityID string, meta ClientMeta) (*models.Session, error) {
	sess := models.Session{
		ProfileID:          profileID,
		TokenHash:          utils.HashToken(rawToken),
		ExternalIdentityID: externalIdentityID,
		ExpiresAt:          s.Clock.Now().UTC().Add(s.TTL),
		IP:                 meta.IP,
		UserAgent:          meta.UserAgent,
	}
	if err := db.Create(&sess).Error; err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to create session", err)
	}
	return &sess, nil
}

// Validate hashes the presented token and looks the session up by hash.
func (s *SessionService) Validate(rawToken string) (*models.Session, error) {
	if rawToken == "" {
		return nil, utils.E(utils.KindUnauthenticated, "missing session token")
	}
	var sess models.Session
	err := s.DB.Where("token_hash = ?", utils.HashToken(rawToken)).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.E(utils.KindUnauthenticated, "session not found")
	}
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to load session", err)
	}
	if s.Clock.Now().After(sess.ExpiresAt) {
		return nil, utils.E(utils.KindUnauthenticated, "session expired")
	}
	return &sess, nil
}

// Refresh extends the session's expiry. For externally established sessions
// the raw credential is first re-validated with the identity authority, and
// the bound external id must still match — a mismatch is a hard failure,
// never a silent rebind. A concurrent logout wins: refreshing a deleted
// session reports unauthenticated instead of recreating the row.
func (s *SessionService) Refresh(ctx context.Context, rawToken string) (*models.Session, error) {
	sess, err := s.Validate(rawToken)
	if err != nil {
		return nil, err
	}

	if sess.ExternalIdentityID != "" {
		identity, rerr := s.Identity.Resolve(ctx, rawToken)
		if rerr != nil {
			log.Printf("❌ [SESSION] refresh blocked, identity service unreachable: %v", rerr)
			return nil, utils.E(utils.KindUpstreamIdentity, "identity service unavailable")
		}
		if identity == nil {
			return nil, utils.E(utils.KindUnauthenticated, "credential no longer valid")
		}
		if identity.UserID != sess.ExternalIdentityID {
			log.Printf("❌ [SESSION] user mismatch on refresh: session=%s resolver=%s", sess.ExternalIdentityID, identity.UserID)
			return nil, utils.E(utils.KindUnauthenticated, "session user mismatch")
		}
	}

	newExpiry := s.Clock.Now().UTC().Add(s.TTL)
	res := s.DB.Model(&models.Session{}).Where("id = ?", sess.ID).Update("expires_at", newExpiry)
	if res.Error != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to refresh session", res.Error)
	}
	if res.RowsAffected == 0 {
		// Deleted underneath us (logout raced the refresh).
		return nil, utils.E(utils.KindUnauthenticated, "session not found")
	}
	sess.ExpiresAt = newExpiry
	return sess, nil
}

// Revoke deletes the session record. Idempotent: revoking an absent
// session is not an error.
func (s *SessionService) Revoke(sessionID string) error {
	if err := s.DB.Where("id = ?", sessionID).Delete(&models.Session{}).Error; err != nil {
		return utils.Wrap(utils.KindStorage, "failed to revoke session", err)
	}
	return nil
}
