package signal

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/haven/internal/application/usecases/circle"
	"github.com/hilthontt/haven/internal/infrastructure/json"
	"github.com/hilthontt/haven/internal/infrastructure/logging"
	"github.com/hilthontt/haven/internal/infrastructure/ws"
	"github.com/hilthontt/haven/internal/presentation/utils"
)

type Handler struct {
	circles  circle.CircleUseCase
	core     *ws.Core
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewHandler(circles circle.CircleUseCase, core *ws.Core, allowedOrigins []string, logger logging.Logger) *Handler {
	return &Handler{
		circles: circles,
		core:    core,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

// ConnectHandler godoc
// @Summary      Connect to a circle's signaling channel
// @Description  Upgrades to a WebSocket for the host and participants. Envelopes sent by the client are relayed to the channel with the sender id attached.
// @Tags         signal
// @Param        circleId path string true "Circle ID"
// @Param        token query string false "Bearer token for clients that can not set headers"
// @Success      101 "Switching Protocols"
// @Failure      403 {object} json.ErrorResponse "Not a member of this circle"
// @Failure      404 {object} json.ErrorResponse "Circle not found"
// @Failure      409 {object} json.ErrorResponse "Circle is no longer active"
// @Security     BearerAuth
// @Router       /circles/{circleId}/signal [get]
func (h *Handler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := utils.RequestPrincipal(r)
	if !ok {
		json.WriteUnauthorizedError(w)
		return
	}

	c, err := h.circles.AuthorizeSignal(r.Context(), p, chi.URLParam(r, "circleId"))
	if err != nil {
		json.WriteDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.Signaling, logging.JoinCircle, "WebSocket upgrade failed", logging.WithError(err, map[logging.ExtraKey]any{
			logging.CircleID: c.ID,
			logging.UserID:   p.ID,
		}))
		return
	}

	client := ws.NewClient(conn, p.ID, c.ChannelName)
	if !h.core.Register(client) {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	go client.WriteMessage()
	go client.ReadMessage(h.core)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) || strings.EqualFold(o, u.Host) {
				return true
			}
		}
		return false
	}
}
