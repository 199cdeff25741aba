package circles

// createCircleRequest is the body of POST /circles
type createCircleRequest struct {
	Topic           string `json:"topic" example:"Exam stress check-in" minLength:"3" maxLength:"100"` // Circle topic
	Description     string `json:"description" example:"A calm space to talk" maxLength:"500"`         // Optional description
	Duration        int    `json:"duration" example:"20"`                                              // Minutes; 20 for regular users
	MaxParticipants int    `json:"maxParticipants" example:"15" minimum:"3" maximum:"30"`              // Capacity including the host
	IsPrivate       bool   `json:"isPrivate" example:"false"`                                          // Private circles need the join code
	AnonymousMode   bool   `json:"anonymousMode" example:"false"`                                      // Participants show as "User N"
	AIModeration    bool   `json:"aiModeration" example:"true"`                                        // Screen topic and description
	GameType        string `json:"gameType" example:"none" enums:"none,imposter,would_you_rather,two_truths"`
}

// joinCircleRequest carries the join code of a private circle
type joinCircleRequest struct {
	JoinCode string `json:"joinCode" example:"483920"`
}

type flagCircleRequest struct {
	Reason string `json:"reason" example:"Harassment in chat" minLength:"3" maxLength:"500"`
}

type audioTokenRequest struct {
	ChannelType string `json:"channelType" example:"rtc" enums:"rtc,rtm"`
}
