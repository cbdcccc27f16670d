package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/service"
	"github.com/skybase-int/tarmac-sub003/internal/txdriver"
)

const streamWriteTimeout = 10 * time.Second

// SessionHandler exposes the wizard of one owner: its view, draft edits, the
// risk slider, named commands and the wallet hand-off.
type SessionHandler struct {
	Registry *service.Registry
	// Wallet is nil unless wallet mode is configured.
	Wallet *chain.WalletBridge
	Logger *zap.Logger
	// StreamOrigins are the origin patterns accepted for the websocket stream.
	StreamOrigins []string
}

func (h *SessionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/sessions/:owner")
	g.GET("", h.get)
	g.PATCH("/draft", h.editDraft)
	g.POST("/risk", h.setRisk)
	g.POST("/commands/:command", h.command)
	g.GET("/pending", h.pending)
	g.POST("/pending/:attempt", h.report)
	g.GET("/stream", h.stream)

	r.GET("/api/v1/commands", func(c *gin.Context) { Ok(c, service.Commands, nil) })
}

func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	if h.Registry == nil {
		Error(c, http.StatusInternalServerError, "registry unavailable", nil)
		return nil, false
	}
	s, err := h.Registry.Get(c.Request.Context(), c.Param("owner"))
	if err != nil {
		Fail(c, err)
		return nil, false
	}
	return s, true
}

// respond returns the view, first waiting for outstanding reads when the
// caller asked for a settled view with ?settle=true.
func (h *SessionHandler) respond(c *gin.Context, s *service.Session, view service.SessionView, extra gin.H) {
	if boolQueryDefault(c, "settle", false) {
		if err := s.Flush(c.Request.Context()); err != nil {
			Fail(c, err)
			return
		}
		view = s.View()
	}
	if extra == nil {
		Ok(c, view, nil)
		return
	}
	extra["session"] = view
	Ok(c, extra, nil)
}

// @Summary Get wizard view
// @Tags sessions
// @Param owner path string true "owner address"
// @Param settle query bool false "wait for outstanding reads"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner} [get]
func (h *SessionHandler) get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, s, s.View(), nil)
}

// @Summary Edit draft
// @Tags sessions
// @Param owner path string true "owner address"
// @Param body body service.DraftEdit true "draft edit"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner}/draft [patch]
func (h *SessionHandler) editDraft(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var edit service.DraftEdit
	if err := c.ShouldBindJSON(&edit); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	view, err := s.EditDraft(c.Request.Context(), edit)
	if err != nil {
		Fail(c, err)
		return
	}
	h.respond(c, s, view, nil)
}

type setRiskRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

// @Summary Move risk slider
// @Tags sessions
// @Param owner path string true "owner address"
// @Param body body setRiskRequest true "target risk percent"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner}/risk [post]
func (h *SessionHandler) setRisk(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req setRiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	res, view, err := s.SetRisk(c.Request.Context(), req.Percent)
	if err != nil {
		Fail(c, err)
		return
	}
	h.respond(c, s, view, gin.H{"risk": res})
}

// @Summary Run wizard command
// @Tags sessions
// @Param owner path string true "owner address"
// @Param command path string true "command name (see /api/v1/commands)"
// @Param body body service.CommandBody false "command arguments"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner}/commands/{command} [post]
func (h *SessionHandler) command(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var body service.CommandBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	view, err := s.Command(c.Request.Context(), c.Param("command"), body)
	if err != nil {
		Fail(c, err)
		return
	}
	h.respond(c, s, view, nil)
}

// @Summary List attempts waiting for the wallet
// @Tags wallet
// @Param owner path string true "owner address"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner}/pending [get]
func (h *SessionHandler) pending(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	items := h.Wallet.Pending(s.Owner.Hex())
	if items == nil {
		items = []txdriver.Attempt{}
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Report wallet outcome
// @Tags wallet
// @Param owner path string true "owner address"
// @Param attempt path string true "attempt id"
// @Param body body chain.WalletReport true "hash, rejection or error"
// @Success 200 {object} apiResponse
// @Router /api/v1/sessions/{owner}/pending/{attempt} [post]
func (h *SessionHandler) report(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.Wallet == nil {
		Error(c, http.StatusServiceUnavailable, "wallet bridge unavailable", nil)
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(c.Param("attempt")))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid attempt id", nil)
		return
	}
	owned := false
	for _, a := range h.Wallet.Pending(s.Owner.Hex()) {
		if a.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		Fail(c, chain.ErrUnknownAttempt)
		return
	}
	var req chain.WalletReport
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Wallet.Report(id, req); err != nil {
		Fail(c, err)
		return
	}
	h.respond(c, s, s.View(), nil)
}

// stream pushes every published view over a websocket until the client goes
// away or the session closes. Slow clients only ever see the latest view.
//
// @Summary Stream wizard views
// @Tags sessions
// @Param owner path string true "owner address"
// @Router /api/v1/sessions/{owner}/stream [get]
func (h *SessionHandler) stream(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.StreamOrigins,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.String("owner", s.Owner.Hex()), zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx := conn.CloseRead(c.Request.Context())
	views, cancel := s.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-views:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			payload, err := json.Marshal(v)
			if err != nil {
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, streamWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				if h.Logger != nil {
					h.Logger.Debug("websocket write failed", zap.String("owner", s.Owner.Hex()), zap.Error(err))
				}
				return
			}
		}
	}
}
