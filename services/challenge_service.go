// services/challenge_service.go
package services

import (
	"errors"
	"log"
	"os"
	"time"

	"player-identity-system/chains"
	"player-identity-system/models"
	"player-identity-system/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	challengeTTL     = 5 * time.Minute
	linkChallengeTTL = 10 * time.Minute
)

// ChallengeService mints the short-lived challenges a wallet must sign to
// prove control of an address. Sign-in challenges are persisted as nonce
// rows; link challenges are self-contained signed tokens verified without a
// storage round-trip.
type ChallengeService struct {
	DB    *gorm.DB
	Clock clockwork.Clock

	Domain    string
	Statement string
	TTL       time.Duration
	LinkTTL   time.Duration

	linkSecret []byte
}

func NewChallengeService(db *gorm.DB, clock clockwork.Clock) *ChallengeService {
	domain := os.Getenv("AUTH_DOMAIN")
	if domain == "" {
		domain = "play.localhost"
	}
	statement := os.Getenv("AUTH_STATEMENT")
	if statement == "" {
		statement = "Sign this message to verify you own this wallet. This costs nothing and sends no transaction."
	}
	secret := os.Getenv("LINK_CHALLENGE_SECRET")
	if secret == "" {
		log.Fatal("LINK_CHALLENGE_SECRET environment variable not set")
	}

	return &ChallengeService{
		DB:         db,
		Clock:      clock,
		Domain:     domain,
		Statement:  statement,
		TTL:        challengeTTL,
		LinkTTL:    linkChallengeTTL,
		linkSecret: []byte(secret),
	}
}

type IssuedChallenge struct {
	Nonce     string    `json:"nonce"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Statement string    `json:"statement"`
	Domain    string    `json:"domain"`
}

// Issue mints a challenge for (chain, address). A new challenge replaces
// any pending one for the same pair — concurrent issuance is a benign race
// where the later request wins.
func (s *ChallengeService) Issue(chain, address string) (*IssuedChallenge, error) {
	now := s.Clock.Now().UTC().Truncate(time.Second)
	n := models.Nonce{
		Chain:     chain,
		Address:   address,
		Value:     utils.NewNonce(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.TTL),
	}
	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chain"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "issued_at", "expires_at", "updated_at"}),
	}).Create(&n).Error; err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to store challenge", err)
	}

	return &IssuedChallenge{
		Nonce:     n.Value,
		IssuedAt:  n.IssuedAt,
		ExpiresAt: n.ExpiresAt,
		Statement: s.Statement,
		Domain:    s.Domain,
	}, nil
}

// Pending returns the stored challenge for (chain, address), if any.
func (s *ChallengeService) Pending(chain, address string) (*models.Nonce, error) {
	var n models.Nonce
	err := s.DB.Where("chain = ? AND address = ?", chain, address).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.E(utils.KindInvalidChallenge, "nonce not found")
	}
	if err != nil {
		return nil, utils.Wrap(utils.KindStorage, "failed to load challenge", err)
	}
	return &n, nil
}

// Consume deletes the challenge after successful verification. Challenges
// are single-use; callers run this inside the signup transaction.
func (s *ChallengeService) Consume(db *gorm.DB, chain, address string) error {
	return db.Where("chain = ? AND address = ?", chain, address).Delete(&models.Nonce{}).Error
}

// LinkChallengeClaims is the payload of the self-contained link-challenge
// token: which profile requested the link and which already-proven address
// it is derived from.
type LinkChallengeClaims struct {
	ProfileID     string `json:"pid"`
	SourceAddress string `json:"src"`
	jwt.RegisteredClaims
}

// IssueLinkChallenge mints a tamper-evident token binding profileID and
// sourceAddress for a fixed short window.
func (s *ChallengeService) IssueLinkChallenge(profileID, sourceAddress string) (string, time.Time, error) {
	now := s.Clock.Now().UTC().Truncate(time.Second)
	expiresAt := now.Add(s.LinkTTL)

	claims := LinkChallengeClaims{
		ProfileID:     profileID,
		SourceAddress: sourceAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.linkSecret)
	if err != nil {
		return "", time.Time{}, utils.Wrap(utils.KindStorage, "failed to sign link challenge", err)
	}
	return token, expiresAt, nil
}

// ParseLinkChallenge verifies the token's integrity tag and expiry and
// returns its claims.
func (s *ChallengeService) ParseLinkChallenge(token string) (*LinkChallengeClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &LinkChallengeClaims{},
		func(t *jwt.Token) (interface{}, error) { return s.linkSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(s.Clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, chains.ErrChallengeExpired
		}
		return nil, utils.E(utils.KindInvalidChallenge, "invalid link challenge token")
	}
	claims, ok := parsed.Claims.(*LinkChallengeClaims)
	if !ok || claims.ProfileID == "" {
		return nil, utils.E(utils.KindInvalidChallenge, "invalid link challenge token")
	}
	return claims, nil
}
