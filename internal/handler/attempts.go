package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skybase-int/tarmac-sub003/internal/repository"
)

// AttemptHandler serves the audit trail of transaction attempts.
type AttemptHandler struct {
	Repo repository.Repository
}

func (h *AttemptHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/attempts")
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// @Summary List tx attempts
// @Tags attempts
// @Param owner query string false "owner address"
// @Param group query string false "approve|multicall|authorize|migrate|claim"
// @Param status query string false "attempt status"
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param asc query bool false "oldest first"
// @Success 200 {object} apiResponse
// @Router /api/v1/attempts [get]
func (h *AttemptHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	filter := repository.ListTxAttemptsParams{
		Owner:  stringQueryPtr(c, "owner"),
		Group:  stringQueryPtr(c, "group"),
		Status: stringQueryPtr(c, "status"),
	}
	params := filter
	params.Limit = limit
	params.Offset = offset
	params.OrderBy = "created_at"
	params.Asc = boolPtr(boolQueryDefault(c, "asc", false))

	items, err := h.Repo.ListTxAttempts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTxAttempts(c.Request.Context(), filter)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get tx attempt
// @Tags attempts
// @Param id path string true "attempt id"
// @Success 200 {object} apiResponse
// @Router /api/v1/attempts/{id} [get]
func (h *AttemptHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetTxAttempt(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "attempt not found", nil)
		return
	}
	Ok(c, item, nil)
}
