package domain

import "context"

// Envelope is the opaque message carried by the signaling channel.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	From    string `json:"from,omitempty"`
}

// Signaler fans out envelopes over a circle's channel. Delivery is best effort.
type Signaler interface {
	Publish(channelName string, env Envelope)
	Direct(channelName, userID string, env Envelope) bool
	// Disconnect drops userID's connections from channelName.
	Disconnect(channelName, userID string)
	// Close disconnects every subscriber of channelName.
	Close(channelName string)
}

// CircleEventPublisher emits lifecycle events for downstream consumers such as the audit log.
type CircleEventPublisher interface {
	Publish(ctx context.Context, log *CircleAuditLog) error
}

type AudioChannelType string

const (
	AudioRTC AudioChannelType = "rtc"
	AudioRTM AudioChannelType = "rtm"
)

type AudioCredentials struct {
	Token     string `json:"token"`
	AppID     string `json:"appId"`
	UID       uint32 `json:"uid,omitempty"`
	Account   string `json:"account,omitempty"`
	ExpiresAt int64  `json:"expiresAt"`
}

// AudioTokenProvider issues short-lived credentials for one channel.
type AudioTokenProvider interface {
	Issue(channelName string, channelType AudioChannelType, p Principal) (*AudioCredentials, error)
}
