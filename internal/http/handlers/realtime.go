package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/http/response"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	"github.com/yungbote/aggregation-backend/internal/realtime"
	aggregation "github.com/yungbote/aggregation-backend/internal/services/aggregation"
)

type RealtimeHandler struct {
	Log      *logger.Logger
	Hub      *realtime.SSEHub
	Sessions aggregation.SessionService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, sessions aggregation.SessionService) *RealtimeHandler {
	return &RealtimeHandler{
		Log:      log.With("handler", "RealtimeHandler"),
		Hub:      hub,
		Sessions: sessions,
	}
}

var errChannelClosed = errors.New("session channel is closed")

// GET /api/aggregation/sessions/:id/stream
//
// Streams every notification for one session until the client leaves or the
// session is finalized.
func (h *RealtimeHandler) SessionStream(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	sess, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	channel := realtime.SessionChannel(id)
	if sess.Status == domainagg.StatusFinalized || h.Hub.ChannelClosed(channel) {
		response.RespondError(c, http.StatusGone, string(domainagg.KindSessionNotOpen), errChannelClosed)
		return
	}

	client := h.Hub.NewSSEClient()
	if !h.Hub.AddChannel(client, channel) {
		h.Hub.CloseClient(client)
		response.RespondError(c, http.StatusGone, string(domainagg.KindSessionNotOpen), errChannelClosed)
		return
	}
	h.Log.Info("SSE stream open", "session_id", id, "client_id", client.ID)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)

	h.Hub.CloseClient(client)
	h.Log.Debug("SSE stream closed", "session_id", id, "client_id", client.ID)
}
