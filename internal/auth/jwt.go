// Package auth implements the shared JWT scheme of the control plane:
// EdDSA over a single Ed25519 keypair, short-lived tokens minted per
// request, verified on audience, expiry and a per-endpoint issuer
// allow-list.
package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tgindex/internal/config"
)

type JWT struct {
	issuer     string
	audience   string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	tokenTTL   time.Duration
}

// New loads the keypair per the auth config. The public key is required for
// verification; the private key is optional and only needed by services
// that make outbound calls. Inline keys take precedence over file paths.
func New(conf config.AuthConfig, issuer, audience string) (*JWT, error) {
	ttl := conf.TokenTTL
	if ttl == 0 {
		ttl = 300
	}
	a := &JWT{
		issuer:   issuer,
		audience: audience,
		tokenTTL: time.Duration(ttl) * time.Second,
	}

	pub, err := loadPublicKey(conf.PublicKeyInline, conf.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	a.publicKey = pub

	priv, err := loadPrivateKey(conf.PrivateKeyInline, conf.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	a.privateKey = priv

	return a, nil
}

func (a *JWT) Issuer() string {
	return a.issuer
}

// GenerateToken mints a fresh token for an outbound call to targetAudience.
func (a *JWT) GenerateToken(targetAudience string) (string, error) {
	if a.privateKey == nil {
		return "", fmt.Errorf("private key not loaded, cannot generate tokens")
	}
	if targetAudience == "" {
		targetAudience = a.audience
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Audience:  jwt.ClaimStrings{targetAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(a.privateKey)
}

// VerifyToken checks signature, expiry and audience, then matches the
// issuer against allowedIssuers. Returns the claims on success.
func (a *JWT) VerifyToken(tokenString string, allowedIssuers []string) (*jwt.RegisteredClaims, error) {
	if a.publicKey == nil {
		return nil, fmt.Errorf("public key not loaded, cannot verify tokens")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.publicKey, nil
	},
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	if len(allowedIssuers) > 0 {
		ok := false
		for _, iss := range allowedIssuers {
			if claims.Issuer == iss {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("issuer %q not in allowed list", claims.Issuer)
		}
	}

	return claims, nil
}
