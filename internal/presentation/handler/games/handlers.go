package games

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/haven/internal/application/usecases/game"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/json"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/presentation/utils"
)

type Handler struct {
	games  game.GameUseCase
	logger logging.Logger
}

func NewHandler(games game.GameUseCase, logger logging.Logger) *Handler {
	return &Handler{
		games:  games,
		logger: logger,
	}
}

// OpenSessionHandler godoc
// @Summary      Get or create the circle's game session
// @Description  Returns the open session of the circle, creating a waiting one when there is none
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Param        request body openSessionRequest true "Game type, must match the circle"
// @Success      200 {object} domain.GameSession
// @Failure      403 {object} json.ErrorResponse "Not a member of this circle"
// @Failure      409 {object} json.ErrorResponse "Game type does not match this circle"
// @Security     BearerAuth
// @Router       /circles/{circleId}/game [post]
func (h *Handler) OpenSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.GetOrCreate(r.Context(), p, chi.URLParam(r, "circleId"), domain.GameType(req.GameType))
	})
}

// GetSessionHandler godoc
// @Summary      Get a game session
// @Description  Other players' roles are hidden from non-hosts while the game is running
// @Tags         games
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} domain.GameSession
// @Failure      404 {object} json.ErrorResponse "Game session not found"
// @Security     BearerAuth
// @Router       /games/{sessionId} [get]
func (h *Handler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Get(r.Context(), p, sessionID(r))
	})
}

// StartHandler godoc
// @Summary      Start the game
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body gameDataRequest false "Initial game data"
// @Success      200 {object} domain.GameSession
// @Failure      403 {object} json.ErrorResponse "Only the host can perform this action"
// @Failure      409 {object} json.ErrorResponse "Game cannot move to that state"
// @Security     BearerAuth
// @Router       /games/{sessionId}/start [post]
func (h *Handler) StartHandler(w http.ResponseWriter, r *http.Request) {
	var req gameDataRequest
	if err := json.ReadOptional(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Start(r.Context(), p, sessionID(r), req.GameData)
	})
}

// AssignRolesHandler godoc
// @Summary      Assign roles
// @Description  Host assigns role labels; each player receives their own role privately
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body assignRolesRequest true "Roles by user id"
// @Success      200 {object} domain.GameSession
// @Failure      400 {object} json.ErrorResponse "Unknown player or role"
// @Security     BearerAuth
// @Router       /games/{sessionId}/roles [post]
func (h *Handler) AssignRolesHandler(w http.ResponseWriter, r *http.Request) {
	var req assignRolesRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.RoleAssignment, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.AssignRoles(r.Context(), p, sessionID(r), req.Roles)
	})
}

// AssignRandomRolesHandler godoc
// @Summary      Assign random roles
// @Tags         games
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/roles/random [post]
func (h *Handler) AssignRandomRolesHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, logging.RoleAssignment, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.AssignRandomRoles(r.Context(), p, sessionID(r))
	})
}

// VoteHandler godoc
// @Summary      Cast a vote
// @Description  A later vote by the same player replaces the earlier one
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body voteRequest true "Vote target"
// @Success      200 {object} domain.GameSession
// @Failure      403 {object} json.ErrorResponse "Not a player in this game"
// @Security     BearerAuth
// @Router       /games/{sessionId}/vote [post]
func (h *Handler) VoteHandler(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.Voting, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Vote(r.Context(), p, sessionID(r), req.TargetID)
	})
}

// UpdatePhaseHandler godoc
// @Summary      Move to a phase
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body updatePhaseRequest true "Phase and game data to merge"
// @Success      200 {object} domain.GameSession
// @Failure      400 {object} json.ErrorResponse "Unknown phase for this game"
// @Security     BearerAuth
// @Router       /games/{sessionId}/phase [patch]
func (h *Handler) UpdatePhaseHandler(w http.ResponseWriter, r *http.Request) {
	var req updatePhaseRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.UpdatePhase(r.Context(), p, sessionID(r), req.Phase, req.GameData)
	})
}

// PauseHandler godoc
// @Summary      Pause the game
// @Tags         games
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/pause [post]
func (h *Handler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Pause(r.Context(), p, sessionID(r))
	})
}

// ResumeHandler godoc
// @Summary      Resume the game
// @Tags         games
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/resume [post]
func (h *Handler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Resume(r.Context(), p, sessionID(r))
	})
}

// NewRoundHandler godoc
// @Summary      Start a new round
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body gameDataRequest false "Game data for the new round"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/rounds [post]
func (h *Handler) NewRoundHandler(w http.ResponseWriter, r *http.Request) {
	var req gameDataRequest
	if err := json.ReadOptional(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.NewRound(r.Context(), p, sessionID(r), req.GameData)
	})
}

// EndHandler godoc
// @Summary      End the game
// @Description  Records host supplied results. Ending an ended game returns it unchanged.
// @Tags         games
// @Accept       json
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Param        request body endSessionRequest false "Final results"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/end [post]
func (h *Handler) EndHandler(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := json.ReadOptional(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	h.serve(w, r, logging.SessionLifecycle, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.End(r.Context(), p, sessionID(r), req.Results)
	})
}

// ResolveHandler godoc
// @Summary      Tally votes and end the game
// @Description  A tie for the most votes resolves nobody
// @Tags         games
// @Produce      json
// @Param        sessionId path string true "Session ID"
// @Success      200 {object} domain.GameSession
// @Security     BearerAuth
// @Router       /games/{sessionId}/resolve [post]
func (h *Handler) ResolveHandler(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, logging.Voting, func(p domain.Principal) (*domain.GameSession, error) {
		return h.games.Resolve(r.Context(), p, sessionID(r))
	})
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, sub logging.SubCategory, op func(domain.Principal) (*domain.GameSession, error)) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	session, err := op(p)
	if err != nil {
		if json.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error(logging.Game, sub, "Request failed", logging.WithError(err, map[logging.ExtraKey]any{
				logging.Method: r.Method,
				logging.Path:   r.URL.Path,
			}))
		}
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusOK, session)
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionId")
}
