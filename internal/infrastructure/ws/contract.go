package ws

import "github.com/hilthontt/haven/internal/domain"

type WSMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	From    string `json:"from,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func fromEnvelope(channelName string, env domain.Envelope) *WSMessage {
	return &WSMessage{
		Type:    env.Type,
		Channel: channelName,
		From:    env.From,
		Payload: env.Payload,
	}
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func NewError(channelName, code, message string) *WSMessage {
	return &WSMessage{
		Type:    ErrorEvent,
		Channel: channelName,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
