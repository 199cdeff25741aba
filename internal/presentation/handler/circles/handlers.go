package circles

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/domain"
	"github.com/hilthontt/haven/internal/infrastructure/json"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/haven/internal/presentation/utils"
)

type Handler struct {
	circles     circle.CircleUseCase
	joinLimiter *ratelimiter.FixedWindowRateLimiter
	logger      logging.Logger
}

func NewHandler(circles circle.CircleUseCase, joinLimiter *ratelimiter.FixedWindowRateLimiter, logger logging.Logger) *Handler {
	return &Handler{
		circles:     circles,
		joinLimiter: joinLimiter,
		logger:      logger,
	}
}

// CreateCircleHandler godoc
// @Summary      Create a support circle
// @Description  Creates an active circle hosted by the caller and returns it with its join code
// @Tags         circles
// @Accept       json
// @Produce      json
// @Param        request body createCircleRequest true "Circle settings"
// @Success      201 {object} domain.Circle "Circle created"
// @Failure      400 {object} json.ErrorResponse "Validation error"
// @Failure      401 {object} json.ErrorResponse "Missing or invalid authentication"
// @Failure      409 {object} json.ErrorResponse "The caller already hosts an open circle"
// @Failure      503 {object} json.ErrorResponse "No join code could be allocated"
// @Security     BearerAuth
// @Router       /circles [post]
func (h *Handler) CreateCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	var req createCircleRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	c, err := h.circles.Create(r.Context(), p, circle.CreateInput{
		Topic:           req.Topic,
		Description:     req.Description,
		Duration:        req.Duration,
		MaxParticipants: req.MaxParticipants,
		IsPrivate:       req.IsPrivate,
		AnonymousMode:   req.AnonymousMode,
		AIModeration:    req.AIModeration,
		GameType:        domain.GameType(req.GameType),
	})
	if err != nil {
		h.fail(w, r, logging.CreateCircle, err)
		return
	}

	json.Write(w, http.StatusCreated, c)
}

// ListCirclesHandler godoc
// @Summary      List circles
// @Description  Lists the circles visible to the caller, newest first. Admins may filter by status.
// @Tags         circles
// @Produce      json
// @Param        status query string false "Comma separated statuses" example(active,ended)
// @Success      200 {array} domain.Circle
// @Failure      400 {object} json.ErrorResponse "Unknown status"
// @Failure      401 {object} json.ErrorResponse "Missing or invalid authentication"
// @Security     BearerAuth
// @Router       /circles [get]
func (h *Handler) ListCirclesHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		json.WriteValidationError(w, err)
		return
	}

	list, err := h.circles.List(r.Context(), p, circle.ListInput{Statuses: statuses})
	if err != nil {
		h.fail(w, r, logging.Lookup, err)
		return
	}

	json.Write(w, http.StatusOK, list)
}

// GetCircleHandler godoc
// @Summary      Get a circle
// @Tags         circles
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Success      200 {object} domain.Circle
// @Failure      404 {object} json.ErrorResponse "Circle not found"
// @Security     BearerAuth
// @Router       /circles/{circleId} [get]
func (h *Handler) GetCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	c, err := h.circles.Get(r.Context(), p, chi.URLParam(r, "circleId"))
	if err != nil {
		h.fail(w, r, logging.Lookup, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// JoinCircleHandler godoc
// @Summary      Join a circle
// @Description  Adds the caller as a participant. Private circles require the join code. Rejoining is a no-op.
// @Tags         circles
// @Accept       json
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Param        request body joinCircleRequest false "Join code for private circles"
// @Success      200 {object} domain.Circle
// @Failure      403 {object} json.ErrorResponse "Invalid join code"
// @Failure      409 {object} json.ErrorResponse "Circle is full or no longer active"
// @Failure      429 {object} json.ErrorResponse "Too many join attempts"
// @Security     BearerAuth
// @Router       /circles/{circleId}/join [post]
func (h *Handler) JoinCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}
	if !h.allowJoin(w, p) {
		return
	}

	var req joinCircleRequest
	if err := json.ReadOptional(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	c, err := h.circles.Join(r.Context(), p, chi.URLParam(r, "circleId"), req.JoinCode)
	if err != nil {
		h.fail(w, r, logging.JoinCircle, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// JoinByCodeHandler godoc
// @Summary      Join a circle by its code
// @Tags         circles
// @Accept       json
// @Produce      json
// @Param        request body joinCircleRequest true "Six digit join code"
// @Success      200 {object} domain.Circle
// @Failure      400 {object} json.ErrorResponse "Malformed code"
// @Failure      403 {object} json.ErrorResponse "Invalid join code"
// @Failure      429 {object} json.ErrorResponse "Too many join attempts"
// @Security     BearerAuth
// @Router       /circles/join [post]
func (h *Handler) JoinByCodeHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}
	if !h.allowJoin(w, p) {
		return
	}

	var req joinCircleRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	c, err := h.circles.JoinByCode(r.Context(), p, req.JoinCode)
	if err != nil {
		h.fail(w, r, logging.JoinCircle, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// LeaveCircleHandler godoc
// @Summary      Leave a circle
// @Tags         circles
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Success      200 {object} domain.Circle
// @Failure      404 {object} json.ErrorResponse "Circle not found"
// @Security     BearerAuth
// @Router       /circles/{circleId}/leave [post]
func (h *Handler) LeaveCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	c, err := h.circles.Leave(r.Context(), p, chi.URLParam(r, "circleId"))
	if err != nil {
		h.fail(w, r, logging.LeaveCircle, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// EndCircleHandler godoc
// @Summary      End a circle
// @Description  Host or admin ends the circle. Ending an ended circle returns it unchanged.
// @Tags         circles
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Success      200 {object} domain.Circle
// @Failure      403 {object} json.ErrorResponse "Only the host can perform this action"
// @Failure      404 {object} json.ErrorResponse "Circle not found"
// @Security     BearerAuth
// @Router       /circles/{circleId}/end [post]
func (h *Handler) EndCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	c, err := h.circles.End(r.Context(), p, chi.URLParam(r, "circleId"))
	if err != nil {
		h.fail(w, r, logging.EndCircle, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// CancelCircleHandler godoc
// @Summary      Cancel a circle
// @Tags         circles
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Success      200 {object} domain.Circle
// @Failure      403 {object} json.ErrorResponse "Only the host can perform this action"
// @Security     BearerAuth
// @Router       /circles/{circleId}/cancel [post]
func (h *Handler) CancelCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	c, err := h.circles.Cancel(r.Context(), p, chi.URLParam(r, "circleId"))
	if err != nil {
		h.fail(w, r, logging.EndCircle, err)
		return
	}

	json.Write(w, http.StatusOK, c)
}

// FlagCircleHandler godoc
// @Summary      Flag a circle for moderation
// @Tags         circles
// @Accept       json
// @Param        circleId path string true "Circle ID"
// @Param        request body flagCircleRequest true "Reason"
// @Success      204 "Flag recorded"
// @Failure      400 {object} json.ErrorResponse "Reason too short or too long"
// @Failure      403 {object} json.ErrorResponse "Not a member of this circle"
// @Security     BearerAuth
// @Router       /circles/{circleId}/flag [post]
func (h *Handler) FlagCircleHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	var req flagCircleRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	if err := h.circles.Flag(r.Context(), p, chi.URLParam(r, "circleId"), req.Reason); err != nil {
		h.fail(w, r, logging.FlagCircle, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AudioTokenHandler godoc
// @Summary      Issue audio credentials
// @Description  Returns a short-lived token for the circle's voice channel
// @Tags         circles
// @Accept       json
// @Produce      json
// @Param        circleId path string true "Circle ID"
// @Param        request body audioTokenRequest false "Channel type, rtc by default"
// @Success      200 {object} domain.AudioCredentials
// @Failure      403 {object} json.ErrorResponse "Not a member of this circle"
// @Failure      503 {object} json.ErrorResponse "Audio is not available right now"
// @Security     BearerAuth
// @Router       /circles/{circleId}/audio-token [post]
func (h *Handler) AudioTokenHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	var req audioTokenRequest
	if err := json.ReadOptional(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	creds, err := h.circles.IssueAudioToken(r.Context(), p, chi.URLParam(r, "circleId"), domain.AudioChannelType(req.ChannelType))
	if err != nil {
		h.fail(w, r, logging.AudioToken, err)
		return
	}

	json.Write(w, http.StatusOK, creds)
}

// allowJoin caps join attempts per principal so private join codes can not be enumerated.
func (h *Handler) allowJoin(w http.ResponseWriter, p domain.Principal) bool {
	if h.joinLimiter == nil {
		return true
	}
	allowed, retryIn := h.joinLimiter.Allow("join:" + p.ID)
	if !allowed {
		json.WriteRateLimitError(w, int(math.Ceil(retryIn.Seconds())))
	}
	return allowed
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, sub logging.SubCategory, err error) {
	if json.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(logging.Circle, sub, "Request failed", logging.WithError(err, map[logging.ExtraKey]any{
			logging.Method: r.Method,
			logging.Path:   r.URL.Path,
		}))
	}
	json.WriteDomainError(w, err)
}

func parseStatuses(raw string) ([]domain.CircleStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var out []domain.CircleStatus
	for _, s := range strings.Split(raw, ",") {
		status := domain.CircleStatus(strings.TrimSpace(s))
		switch status {
		case domain.CircleScheduled, domain.CircleActive, domain.CircleEnded, domain.CircleCancelled:
			out = append(out, status)
		default:
			return nil, errors.New("status must be one of scheduled, active, ended, cancelled")
		}
	}
	return out, nil
}
