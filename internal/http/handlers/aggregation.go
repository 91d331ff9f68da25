package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/aggregation-backend/internal/domain"
	domainagg "github.com/yungbote/aggregation-backend/internal/domain/aggregation"
	"github.com/yungbote/aggregation-backend/internal/http/response"
	"github.com/yungbote/aggregation-backend/internal/pkg/logger"
	aggregation "github.com/yungbote/aggregation-backend/internal/services/aggregation"
)

type AggregationHandler struct {
	Log      *logger.Logger
	Sessions aggregation.SessionService
}

func NewAggregationHandler(log *logger.Logger, sessions aggregation.SessionService) *AggregationHandler {
	return &AggregationHandler{
		Log:      log.With("handler", "AggregationHandler"),
		Sessions: sessions,
	}
}

func sessionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.KindInvalidArgument), errors.New("invalid session id"))
		return uuid.Nil, false
	}
	return id, true
}

// POST /api/aggregation/sessions
func (h *AggregationHandler) StartSession(c *gin.Context) {
	var req aggregation.StartInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.KindInvalidArgument), err)
		return
	}
	sess, err := h.Sessions.Start(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "start session failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": sess, "state": domainagg.StateOf(sess)})
}

// GET /api/aggregation/sessions/:id
func (h *AggregationHandler) GetSession(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	sess, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get session failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": sess, "state": domainagg.StateOf(sess)})
}

type scanRequest struct {
	ScannedCode string `json:"scannedCode"`
	ActorID     string `json:"actorId"`
}

// POST /api/aggregation/sessions/:id/scan
//
// Rejections are a normal 200 response with accepted=false.
func (h *AggregationHandler) Scan(c *gin.Context) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, string(domainagg.KindInvalidArgument), err)
		return
	}
	res, err := h.Sessions.Scan(c.Request.Context(), aggregation.ScanInput{
		SessionID:   id,
		ScannedCode: req.ScannedCode,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.fail(c, "scan failed", err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/aggregation/sessions/:id/finalize
func (h *AggregationHandler) Finalize(c *gin.Context) {
	h.lifecycle(c, "finalize", h.Sessions.Finalize)
}

// POST /api/aggregation/sessions/:id/pause
func (h *AggregationHandler) Pause(c *gin.Context) {
	h.lifecycle(c, "pause", h.Sessions.Pause)
}

// POST /api/aggregation/sessions/:id/resume
func (h *AggregationHandler) Resume(c *gin.Context) {
	h.lifecycle(c, "resume", h.Sessions.Resume)
}

// POST /api/aggregation/sessions/:id/close
func (h *AggregationHandler) Close(c *gin.Context) {
	h.lifecycle(c, "close", h.Sessions.Close)
}

type sessionAction func(ctx context.Context, id uuid.UUID) (*types.AggregationSession, error)

func (h *AggregationHandler) lifecycle(c *gin.Context, action string, fn sessionAction) {
	id, ok := sessionIDParam(c)
	if !ok {
		return
	}
	sess, err := fn(c.Request.Context(), id)
	if err != nil {
		h.fail(c, action+" session failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": sess, "state": domainagg.StateOf(sess)})
}

func (h *AggregationHandler) fail(c *gin.Context, msg string, err error) {
	if domainagg.KindOf(err) == "" {
		h.Log.Error(msg, "error", err, "path", c.FullPath())
	} else {
		h.Log.Debug(msg, "error", err)
	}
	response.RespondServiceError(c, err)
}
