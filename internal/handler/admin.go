package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"postcodejp/internal/fetcher"
	"postcodejp/internal/models"
	"postcodejp/internal/service"

	"github.com/gin-gonic/gin"
)

// SyncService triggers syncs and reads the sync ledger.
type SyncService interface {
	TriggerSync() string
	TriggerDiff(yymm string) (string, error)
	Status(ctx context.Context) (*models.SyncStatus, error)
	History(ctx context.Context, limit, offset int) ([]models.SyncRun, error)
}

// AdminHandler handles the administrative sync endpoints
type AdminHandler struct {
	service SyncService
}

func NewAdminHandler(svc SyncService) *AdminHandler {
	return &AdminHandler{service: svc}
}

// TriggerResponse acknowledges a background sync.
type TriggerResponse struct {
	Message   string `json:"message"`
	TriggerID string `json:"trigger_id"`
}

// TriggerSync godoc
// @Summary      Start a full sync
// @Description  Re-syncs both datasets in the background, bypassing the freshness check.
// @Tags         admin
// @Produce      json
// @Security     ApiKeyAuth
// @Success      202  {object}  TriggerResponse
// @Router       /admin/sync [post]
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	id := h.service.TriggerSync()
	c.JSON(http.StatusAccepted, TriggerResponse{Message: "sync started in background", TriggerID: id})
}

// TriggerDiff godoc
// @Summary      Start a monthly diff sync
// @Tags         admin
// @Produce      json
// @Security     ApiKeyAuth
// @Param        yymm  query     string  true  "year and month of the diff, e.g. 2501"
// @Success      202   {object}  TriggerResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /admin/sync/diff [post]
func (h *AdminHandler) TriggerDiff(c *gin.Context) {
	yymm := c.Query("yymm")
	if yymm == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required query parameter 'yymm'"})
		return
	}
	id, err := h.service.TriggerDiff(yymm)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidYearMonth) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusAccepted, TriggerResponse{Message: "diff sync started in background", TriggerID: id})
}

// Status godoc
// @Summary   Current sync status
// @Tags      admin
// @Produce   json
// @Security  ApiKeyAuth
// @Success   200  {object}  models.SyncStatus
// @Router    /admin/sync/status [get]
func (h *AdminHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, status)
}

// History godoc
// @Summary   Sync history, most recent first
// @Tags      admin
// @Produce   json
// @Security  ApiKeyAuth
// @Param     limit   query    int  false  "page size (1-100)"  default(20)
// @Param     offset  query    int  false  "page offset"        default(0)
// @Success   200     {array}  models.SyncRun
// @Failure   400     {object}  ErrorResponse
// @Router    /admin/sync/history [get]
func (h *AdminHandler) History(c *gin.Context) {
	limit, offset, ok := pagination(c, service.DefaultHistoryLimit)
	if !ok {
		return
	}
	runs, err := h.service.History(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, runs)
}

// APIKey rejects requests whose X-API-Key header does not match key. An empty
// key disables the check.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
			return
		}
		c.Next()
	}
}
