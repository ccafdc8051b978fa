package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "typ" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// RoleDevice is the role of RFID reader tokens.
const RoleDevice = "device"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("wrong token kind")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExpiresAt"`
	RefreshExp   time.Time `json:"refreshExpiresAt"`
}

// Claims represents the JWT payload of a reader device.
type Claims struct {
	Role    string `json:"role"`
	Kind    string `json:"typ"`
	ClassID string `json:"classId,omitempty"`
	jwt.RegisteredClaims
}

// DeviceID is the token subject.
func (c Claims) DeviceID() string { return c.Subject }

// Signer issues and validates HS256 device tokens.
type Signer struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// NewSigner creates a signer with the given key and lifetimes.
func NewSigner(issuer, key string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{Issuer: issuer, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, Now: time.Now}
}

func (s *Signer) sign(deviceID, classID, kind string, exp time.Time) (string, error) {
	claims := Claims{
		Role:    RoleDevice,
		Kind:    kind,
		ClassID: classID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(s.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
}

// Issue issues signed access and refresh tokens for a device, optionally
// pinned to one class.
func (s *Signer) Issue(deviceID, classID string) (TokenPair, error) {
	now := s.Now()
	accessExp := now.Add(s.AccessTTL)
	refreshExp := now.Add(s.RefreshTTL)

	access, err := s.sign(deviceID, classID, KindAccess, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(deviceID, classID, KindRefresh, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Parse validates a token of the wanted kind and returns its claims.
func (s *Signer) Parse(tokenStr, kind string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.Key, nil
	}, jwt.WithIssuer(s.Issuer), jwt.WithTimeFunc(s.Now))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return *claims, nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *Signer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := s.Parse(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return s.Issue(claims.Subject, claims.ClassID)
}
