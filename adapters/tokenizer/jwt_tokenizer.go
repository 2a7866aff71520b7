package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Madhoneybees/discord-nft-verifier/core"
	"github.com/Madhoneybees/discord-nft-verifier/ports"
)

const (
	AudienceAccess = "verifier:access"
	AudienceAdmin  = "verifier:admin"
)

// DefaultAccessTTL is how long a member token stays valid.
const DefaultAccessTTL = 24 * time.Hour

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey   *ecdsa.PrivateKey
	accessTTL time.Duration
	clock     clock.Clock
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, accessTTL time.Duration, clk clock.Clock) *JWTTokenizer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	return &JWTTokenizer{signKey: signKey, accessTTL: accessTTL, clock: clk}
}

var _ ports.Tokenizer = (*JWTTokenizer)(nil)

// ParseSigningKey reads a PEM encoded P-256 key. An empty input yields a
// random key, so tokens do not survive a restart.
func ParseSigningKey(pem string) (key *ecdsa.PrivateKey, ephemeral bool, err error) {
	if pem == "" {
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		return key, true, err
	}
	key, err = jwt.ParseECPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, false, fmt.Errorf("signing key must be on P-256: %w", core.ErrInvalidConfig)
	}
	return key, false, nil
}

// SubjectToAccessToken issues an access token for a verified subject
func (j *JWTTokenizer) SubjectToAccessToken(subjectID, wallet string) (string, time.Time, error) {
	now := j.clock.Now()
	expiresAt := now.Add(j.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		Wallet: wallet,
	}

	signed, err := j.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// AccessTokenToSubject parses an access token
func (j *JWTTokenizer) AccessTokenToSubject(tokenStr string) (string, string, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return "", "", err
	}
	if claims.Subject == "" {
		return "", "", core.ErrInvalidToken
	}
	return claims.Subject, claims.Wallet, nil
}

// AdminToken issues a token for the admin endpoints
func (j *JWTTokenizer) AdminToken(name string, ttl time.Duration) (string, error) {
	now := j.clock.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceAdmin},
		},
	}

	signed, err := j.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken returns the operator name of a valid admin token
func (j *JWTTokenizer) ValidateAdminToken(tokenStr string) (string, error) {
	claims := &AdminClaims{}
	if err := j.parse(tokenStr, claims, AudienceAdmin); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (j *JWTTokenizer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(j.signKey)
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return fmt.Errorf("%v: %w", err, core.ErrInvalidToken)
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}
	return nil
}
