package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/backend"
	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/codec"
	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
	"github.com/MarcoPoloResearchLab/storyboard/internal/drafts"
	"github.com/MarcoPoloResearchLab/storyboard/internal/editor"
)

const (
	sessionIDParam      = "id"
	ctaIDParam          = "cta_id"
	heartbeatInterval   = 25 * time.Second
	sessionContextKey   = "storyboard_session"
	errorInvalidRequest = "invalid_request"
)

var errMissingSessionManager = errors.New("session manager dependency required")

type Dependencies struct {
	Sessions *SessionManager
	Logger   *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		sessions: deps.Sessions,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/sessions", handler.handleOpenSession)

	scoped := router.Group("/sessions/:" + sessionIDParam)
	scoped.Use(handler.resolveSession)
	scoped.GET("", handler.handleGetSession)
	scoped.DELETE("", handler.handleCloseSession)
	scoped.GET("/document", handler.handleGetDocument)
	scoped.PUT("/group", handler.handleSetGroup)
	scoped.PUT("/slide", handler.handleSetSlide)
	scoped.POST("/ctas", handler.handleAddCTA)
	scoped.PATCH("/ctas/:"+ctaIDParam, handler.handleUpdateCTA)
	scoped.DELETE("/ctas/:"+ctaIDParam, handler.handleRemoveCTA)
	scoped.POST("/pages/delete", handler.handleDeletePages)
	scoped.POST("/draft", handler.handleSaveDraft)
	scoped.GET("/draft", handler.handleGetDraft)
	scoped.GET("/events", handler.handleEvents)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

type httpHandler struct {
	sessions *SessionManager
	logger   *zap.Logger
}

type openSessionRequest struct {
	CampaignID campaigns.ID `json:"campaign_id"`
	GroupID    campaigns.ID `json:"group_id"`
}

type sessionPayload struct {
	SessionID      string              `json:"session_id"`
	CampaignID     string              `json:"campaign_id"`
	CurrentGroupID string              `json:"current_group_id"`
	CurrentSlideID string              `json:"current_slide_id"`
	ActivePageID   string              `json:"active_page_id"`
	Revision       uint64              `json:"revision"`
	Hydrating      bool                `json:"hydrating"`
	Slide          *slideStatePayload  `json:"slide,omitempty"`
	Report         hydrationReportView `json:"report"`
	CreatedAt      int64               `json:"created_at_s"`
}

type slideStatePayload struct {
	SlideID string        `json:"slide_id"`
	PageID  string        `json:"page_id"`
	Text    string        `json:"text"`
	Image   string        `json:"image,omitempty"`
	Video   string        `json:"video,omitempty"`
	CTAs    []cta.Payload `json:"ctas"`
	Poll    *codec.Poll   `json:"poll,omitempty"`
}

type hydrationReportView struct {
	Slides           int      `json:"slides"`
	CTAs             int      `json:"ctas"`
	Clean            bool     `json:"clean"`
	MalformedContent []string `json:"malformed_content,omitempty"`
	MalformedStyling []string `json:"malformed_styling,omitempty"`
	MalformedPolls   []string `json:"malformed_polls,omitempty"`
	SkippedCTAs      int      `json:"skipped_ctas"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleOpenSession(c *gin.Context) {
	var request openSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil || (request.CampaignID == "" && request.GroupID == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	entry, err := h.sessions.Open(c.Request.Context(), request.CampaignID, request.GroupID)
	if err != nil {
		h.respondError(c, "open_session", err)
		return
	}
	c.JSON(http.StatusCreated, describeSession(entry))
}

func (h *httpHandler) resolveSession(c *gin.Context) {
	entry, err := h.sessions.Get(c.Param(sessionIDParam))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return
	}
	c.Set(sessionContextKey, entry)
	c.Next()
}

func sessionFrom(c *gin.Context) *editorSession {
	return c.MustGet(sessionContextKey).(*editorSession)
}

func (h *httpHandler) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, describeSession(sessionFrom(c)))
}

func (h *httpHandler) handleCloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param(sessionIDParam)); err != nil {
		h.respondError(c, "close_session", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleGetDocument(c *gin.Context) {
	c.JSON(http.StatusOK, sessionFrom(c).document.ToJSON())
}

type setGroupRequest struct {
	GroupID campaigns.ID `json:"group_id"`
}

func (h *httpHandler) handleSetGroup(c *gin.Context) {
	var request setGroupRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.GroupID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	entry := sessionFrom(c)
	if err := entry.editor.SetCurrentGroup(c.Request.Context(), request.GroupID); err != nil {
		h.respondError(c, "set_group", err)
		return
	}
	c.JSON(http.StatusOK, describeSession(entry))
}

type setSlideRequest struct {
	SlideID campaigns.ID `json:"slide_id"`
}

func (h *httpHandler) handleSetSlide(c *gin.Context) {
	var request setSlideRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.SlideID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	entry := sessionFrom(c)
	if err := entry.editor.SetCurrentSlide(request.SlideID); err != nil {
		h.respondError(c, "set_slide", err)
		return
	}
	c.JSON(http.StatusOK, describeSession(entry))
}

type ctaRequest struct {
	Type    string     `json:"type"`
	Content cta.Fields `json:"content"`
	Styling cta.Fields `json:"styling"`
}

func (h *httpHandler) handleAddCTA(c *gin.Context) {
	var request ctaRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	kind, err := cta.ParseKind(request.Type)
	if err != nil {
		h.respondError(c, "add_cta", err)
		return
	}
	created, err := sessionFrom(c).editor.AddCTA(kind, cta.Overrides{Content: request.Content, Styling: request.Styling})
	if err != nil {
		h.respondError(c, "add_cta", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleUpdateCTA(c *gin.Context) {
	var request ctaRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	updated, err := sessionFrom(c).editor.UpdateCTA(c.Param(ctaIDParam), cta.Overrides{Content: request.Content, Styling: request.Styling})
	if err != nil {
		h.respondError(c, "update_cta", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleRemoveCTA(c *gin.Context) {
	if err := sessionFrom(c).editor.RemoveCTA(c.Param(ctaIDParam)); err != nil {
		h.respondError(c, "remove_cta", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type deletePagesRequest struct {
	PageIDs []string `json:"page_ids"`
	Confirm bool     `json:"confirm"`
}

type deletePagesResponse struct {
	RemovedPageIDs  []string `json:"removed_page_ids"`
	DeletedSlideIDs []string `json:"deleted_slide_ids"`
}

func (h *httpHandler) handleDeletePages(c *gin.Context) {
	var request deletePagesRequest
	if err := c.ShouldBindJSON(&request); err != nil || len(request.PageIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorInvalidRequest})
		return
	}
	ctx := WithConfirmation(c.Request.Context(), request.Confirm)
	result, err := sessionFrom(c).editor.DeletePages(ctx, request.PageIDs)
	if err != nil {
		h.respondError(c, "delete_pages", err)
		return
	}
	response := deletePagesResponse{
		RemovedPageIDs:  append([]string{}, result.RemovedPageIDs...),
		DeletedSlideIDs: make([]string, 0, len(result.DeletedSlideIDs)),
	}
	for _, slideID := range result.DeletedSlideIDs {
		response.DeletedSlideIDs = append(response.DeletedSlideIDs, slideID.String())
	}
	c.JSON(http.StatusOK, response)
}

type draftPayload struct {
	DraftID   string `json:"draft_id"`
	Version   int64  `json:"version"`
	Revision  int64  `json:"revision"`
	Hash      string `json:"document_hash"`
	SavedAt   int64  `json:"saved_at_s"`
	Duplicate bool   `json:"duplicate"`
}

func (h *httpHandler) handleSaveDraft(c *gin.Context) {
	outcome, err := h.sessions.SaveDraft(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.respondError(c, "save_draft", err)
		return
	}
	c.JSON(http.StatusOK, describeDraft(outcome.Draft, outcome.Duplicate))
}

func (h *httpHandler) handleGetDraft(c *gin.Context) {
	draft, err := h.sessions.LatestDraft(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.respondError(c, "get_draft", err)
		return
	}
	c.JSON(http.StatusOK, describeDraft(draft, false))
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	entry := sessionFrom(c)
	stream, cleanup := h.sessions.Events().Subscribe(c.Request.Context(), entry.id)
	defer cleanup()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventReady, gin.H{
		"source":         realtimeSourceEditor,
		"session_id":     entry.id,
		"revision":       entry.document.Revision(),
		"active_page_id": entry.document.ActivePageID(),
	})
	c.Writer.Flush()
	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, gin.H{
				"source":         realtimeSourceEditor,
				"revision":       message.Revision,
				"active_page_id": message.ActivePageID,
				"page_ids":       message.PageIDs,
				"message":        message.Message,
				"timestamp_s":    message.Timestamp.Unix(),
			})
			return true
		case <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceEditor})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("editor request failed", zap.String("operation", operation), zap.Error(err))
	} else {
		h.logger.Debug("editor request rejected", zap.String("operation", operation), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code, "detail": err.Error()})
}

func classifyError(err error) (int, string) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, editor.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found"
	case errors.Is(err, editor.ErrSlideNotFound):
		return http.StatusNotFound, "slide_not_found"
	case errors.Is(err, editor.ErrCTANotFound):
		return http.StatusNotFound, "cta_not_found"
	case errors.Is(err, drafts.ErrDraftNotFound):
		return http.StatusNotFound, "draft_not_found"
	case errors.Is(err, cta.ErrUnknownKind):
		return http.StatusBadRequest, "unknown_cta_type"
	case errors.Is(err, editor.ErrNoCurrentSlide):
		return http.StatusConflict, "no_current_slide"
	case errors.Is(err, editor.ErrDeletionCancelled):
		return http.StatusConflict, "confirmation_required"
	case errors.Is(err, drafts.ErrHydrating):
		return http.StatusConflict, "hydrating"
	case errors.Is(err, drafts.ErrInvalidDraftKey):
		return http.StatusConflict, "no_current_group"
	case errors.Is(err, ErrDraftsDisabled):
		return http.StatusNotImplemented, "drafts_disabled"
	case errors.Is(err, editor.ErrDeletionFailed):
		return http.StatusBadGateway, "deletion_failed"
	case errors.Is(err, editor.ErrHydrationFailed):
		return http.StatusBadGateway, "hydration_failed"
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound, "backend_not_found"
		}
		return http.StatusBadGateway, "backend_failed"
	default:
		var serviceErr interface{ Code() string }
		if errors.As(err, &serviceErr) && strings.Contains(serviceErr.Code(), "missing_identifier") {
			return http.StatusBadRequest, errorInvalidRequest
		}
		return http.StatusInternalServerError, "internal_error"
	}
}

func describeSession(entry *editorSession) sessionPayload {
	session := entry.editor
	report := entry.controller.LastReport()
	payload := sessionPayload{
		SessionID:      entry.id,
		CampaignID:     session.CampaignID().String(),
		CurrentGroupID: session.CurrentGroupID().String(),
		CurrentSlideID: session.CurrentSlideID().String(),
		ActivePageID:   entry.document.ActivePageID(),
		Revision:       entry.document.Revision(),
		Hydrating:      entry.editor.IsHydrating(),
		Report: hydrationReportView{
			Slides:           report.Slides,
			CTAs:             report.CTAs,
			Clean:            report.Clean(),
			MalformedContent: report.MalformedContent,
			MalformedStyling: report.MalformedStyling,
			MalformedPolls:   report.MalformedPolls,
			SkippedCTAs:      len(report.SkippedCTAs),
		},
		CreatedAt: entry.createdAt.Unix(),
	}
	if payload.CurrentSlideID != "" {
		state := session.EditorState()
		payload.Slide = &slideStatePayload{
			SlideID: state.SlideID.String(),
			PageID:  state.PageID,
			Text:    state.Text,
			Image:   state.Image,
			Video:   state.Video,
			CTAs:    cta.ExtractPayload(state.CTAs),
			Poll:    state.Poll,
		}
	}
	return payload
}

func describeDraft(draft drafts.Draft, duplicate bool) draftPayload {
	return draftPayload{
		DraftID:   draft.DraftID,
		Version:   draft.Version,
		Revision:  draft.Revision,
		Hash:      draft.DocumentHash,
		SavedAt:   draft.SavedAtSeconds,
		Duplicate: duplicate,
	}
}
