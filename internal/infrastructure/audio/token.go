package audio

import (
	"errors"
	"hash/fnv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/hilthontt/haven/internal/domain"
)

var ErrNotConfigured = errors.New("audio provider is not configured")

type channelClaims struct {
	jwt.RegisteredClaims
	AppID   string `json:"app"`
	Channel string `json:"channel"`
	Type    string `json:"type"`
	UID     uint32 `json:"uid,omitempty"`
	Account string `json:"account,omitempty"`
}

// TokenProvider signs short-lived channel credentials with the app certificate.
type TokenProvider struct {
	appID       string
	certificate []byte
	ttl         time.Duration
	now         func() time.Time
}

var _ domain.AudioTokenProvider = (*TokenProvider)(nil)

func NewTokenProvider(appID, certificate string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenProvider{
		appID:       appID,
		certificate: []byte(certificate),
		ttl:         ttl,
		now:         time.Now,
	}
}

func (p *TokenProvider) Issue(channelName string, channelType domain.AudioChannelType, principal domain.Principal) (*domain.AudioCredentials, error) {
	if p.appID == "" || len(p.certificate) == 0 {
		return nil, ErrNotConfigured
	}

	now := p.now()
	expires := now.Add(p.ttl)
	claims := channelClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AppID:   p.appID,
		Channel: channelName,
		Type:    string(channelType),
	}

	creds := &domain.AudioCredentials{
		AppID:     p.appID,
		ExpiresAt: expires.Unix(),
	}
	// rtc joins with a numeric uid, rtm logs in with the account name
	if channelType == domain.AudioRTM {
		claims.Account = principal.ID
		creds.Account = principal.ID
	} else {
		claims.UID = UID(principal.ID)
		creds.UID = claims.UID
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.certificate)
	if err != nil {
		return nil, err
	}
	creds.Token = token
	return creds, nil
}

// UID maps a user id onto a stable non-zero 32-bit audio uid.
func UID(userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	if v := h.Sum32(); v != 0 {
		return v
	}
	return 1
}
