package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/skybase-int/tarmac-sub003/internal/chain"
	"github.com/skybase-int/tarmac-sub003/internal/models"
	"github.com/skybase-int/tarmac-sub003/internal/repository"
	"github.com/skybase-int/tarmac-sub003/internal/service"
)

const featurePrefix = "feature."

type SettingsHandler struct {
	Repo     repository.SettingsRepository
	Settings *service.SystemSettingsService
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/settings")
	g.GET("", h.list)
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
	g.GET("/mode", h.getMode)
	g.PUT("/mode", h.putMode)
	g.GET("/:key", h.get)
	g.PUT("/:key", h.put)
}

// @Summary List settings
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings [get]
func (h *SettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSystemSettingsParams{
		Limit:   limit,
		Offset:  offset,
		Prefix:  stringQueryPtr(c, "prefix"),
		OrderBy: "key",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get setting
// @Tags settings
// @Param key path string true "setting key"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/{key} [get]
func (h *SettingsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "invalid key", nil)
		return
	}
	item, err := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	Ok(c, item, nil)
}

type putSettingRequest struct {
	Value       any    `json:"value"`
	Description string `json:"description"`
}

// @Summary Put setting
// @Tags settings
// @Param key path string true "setting key"
// @Param body body putSettingRequest true "value and description"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/{key} [put]
func (h *SettingsHandler) put(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		Error(c, http.StatusBadRequest, "invalid key", nil)
		return
	}
	var req putSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	raw, err := json.Marshal(req.Value)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid value", nil)
		return
	}
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: strings.TrimSpace(req.Description),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := h.Repo.UpsertSystemSetting(c.Request.Context(), item); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	next, _ := h.Repo.GetSystemSettingByKey(c.Request.Context(), key)
	Ok(c, next, nil)
}

// @Summary List feature switches
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/switches [get]
func (h *SettingsHandler) listSwitches(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	prefix := featurePrefix
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), repository.ListSystemSettingsParams{
		Limit:   intQuery(c, "limit", 200),
		Offset:  intQuery(c, "offset", 0),
		Prefix:  &prefix,
		OrderBy: "key",
		Asc:     boolPtr(true),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for i := range items {
		enabled, _ := items[i].Bool()
		out = append(out, map[string]any{
			"name":        strings.TrimPrefix(items[i].Key, featurePrefix),
			"key":         items[i].Key,
			"enabled":     enabled,
			"description": items[i].Description,
			"updated_at":  items[i].UpdatedAt,
		})
	}
	Ok(c, out, nil)
}

// @Summary Get feature switch
// @Tags settings
// @Param name path string true "switch name"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/switches/{name} [get]
func (h *SettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	key := featurePrefix + name
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, false),
	}, nil)
}

type putSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Put feature switch
// @Tags settings
// @Param name path string true "switch name"
// @Param body body putSwitchRequest true "enabled"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/switches/{name} [put]
func (h *SettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	key := featurePrefix + name
	if err := h.Settings.SetEnabled(c.Request.Context(), key, req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"name":    name,
		"key":     key,
		"enabled": req.Enabled,
	}, nil)
}

// @Summary Get executor mode
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/mode [get]
func (h *SettingsHandler) getMode(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	Ok(c, map[string]any{"mode": h.Settings.Mode(c.Request.Context())}, nil)
}

type putModeRequest struct {
	Mode string `json:"mode"`
}

// putMode switches the submitter for attempts started from now on. Attempts
// already in flight finish on the submitter they started with.
// @Summary Put executor mode
// @Tags settings
// @Param body body putModeRequest true "dry-run or wallet"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/mode [put]
func (h *SettingsHandler) putMode(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	var req putModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if mode != chain.ModeDryRun && mode != chain.ModeWallet {
		Error(c, http.StatusBadRequest, "mode must be dry-run or wallet", nil)
		return
	}
	if err := h.Settings.SetMode(c.Request.Context(), mode); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"mode": mode}, nil)
}
