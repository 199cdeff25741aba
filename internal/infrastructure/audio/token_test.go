package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/hilthontt/haven/internal/domain"
)

func TestIssueRequiresConfiguration(t *testing.T) {
	p := NewTokenProvider("", "", 0)
	if _, err := p.Issue("circle-1", domain.AudioRTC, domain.Principal{ID: "u1"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestIssue(t *testing.T) {
	p := NewTokenProvider("app", "cert", time.Hour)
	user := domain.Principal{ID: "u1"}

	rtc, err := p.Issue("circle-1", domain.AudioRTC, user)
	if err != nil {
		t.Fatalf("Issue rtc: %v", err)
	}
	if rtc.UID != UID("u1") || rtc.Account != "" || rtc.AppID != "app" {
		t.Fatalf("unexpected rtc credentials: %+v", rtc)
	}

	var claims channelClaims
	if _, err := jwt.ParseWithClaims(rtc.Token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cert"), nil
	}); err != nil {
		t.Fatalf("token does not verify: %v", err)
	}
	if claims.Channel != "circle-1" || claims.Type != "rtc" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	rtm, err := p.Issue("circle-1", domain.AudioRTM, user)
	if err != nil {
		t.Fatalf("Issue rtm: %v", err)
	}
	if rtm.Account != "u1" || rtm.UID != 0 {
		t.Fatalf("unexpected rtm credentials: %+v", rtm)
	}
}

func TestUIDIsStable(t *testing.T) {
	if UID("u1") != UID("u1") {
		t.Fatal("uid must be deterministic")
	}
	if UID("u1") == UID("u2") {
		t.Fatal("distinct users should map to distinct uids")
	}
	if UID("") == 0 {
		t.Fatal("uid must not be zero")
	}
}
