package games

// openSessionRequest selects the game of the circle's session
type openSessionRequest struct {
	GameType string `json:"gameType" example:"imposter"`
}

// gameDataRequest carries free-form game data merged into the session
type gameDataRequest struct {
	GameData map[string]any `json:"gameData,omitempty"`
}

type assignRolesRequest struct {
	Roles map[string]string `json:"roles"` // userId -> role label
}

type voteRequest struct {
	TargetID string `json:"targetId" example:"user-2"`
}

type updatePhaseRequest struct {
	Phase    string         `json:"phase" example:"discussion"`
	GameData map[string]any `json:"gameData,omitempty"`
}

type endSessionRequest struct {
	Results map[string]any `json:"results,omitempty"`
}
