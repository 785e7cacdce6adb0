package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"postcodejp/internal/models"
	"postcodejp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// LookupService answers read-only postal-code queries.
type LookupService interface {
	LookupPostalCode(ctx context.Context, code string) ([]models.AddressRecord, error)
	Search(ctx context.Context, keyword string, limit, offset int) (*models.PostalCodePage, error)
	LookupOffices(ctx context.Context, code string) ([]models.OfficeRecord, error)
	Prefectures(ctx context.Context) ([]models.Prefecture, error)
	Cities(ctx context.Context, prefectureCode string) ([]models.City, error)
}

// LookupHandler handles postal-code, office and region requests
type LookupHandler struct {
	service LookupService
}

// NewLookupHandler creates a new lookup handler
func NewLookupHandler(svc LookupService) *LookupHandler {
	return &LookupHandler{service: svc}
}

// PostalCode godoc
// @Summary      Look up a postal code
// @Description  Returns every town row assigned the 7-digit code. Hyphens and full-width digits are accepted.
// @Tags         postal-codes
// @Produce      json
// @Param        code  path      string  true  "postal code"
// @Success      200   {array}   models.AddressRecord
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /postal-codes/{code} [get]
func (h *LookupHandler) PostalCode(c *gin.Context) {
	recs, err := h.service.LookupPostalCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err, "postal code not found")
		return
	}
	c.JSON(http.StatusOK, recs)
}

// Search godoc
// @Summary      Search postal codes
// @Tags         postal-codes
// @Produce      json
// @Param        q       query     string  true   "keyword (postal code prefix, kanji or kana)"
// @Param        limit   query     int     false  "page size (1-100)"  default(20)
// @Param        offset  query     int     false  "page offset"        default(0)
// @Success      200     {object}  models.PostalCodePage
// @Failure      400     {object}  ErrorResponse
// @Router       /postal-codes/search [get]
func (h *LookupHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required query parameter 'q'"})
		return
	}
	limit, offset, ok := pagination(c, 0)
	if !ok {
		return
	}

	page, err := h.service.Search(c.Request.Context(), query, limit, offset)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Offices godoc
// @Summary      Look up a business office postal code
// @Tags         offices
// @Produce      json
// @Param        code  path      string  true  "postal code"
// @Success      200   {array}   models.OfficeRecord
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Router       /offices/{code} [get]
func (h *LookupHandler) Offices(c *gin.Context) {
	offices, err := h.service.LookupOffices(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err, "office postal code not found")
		return
	}
	c.JSON(http.StatusOK, offices)
}

// Prefectures godoc
// @Summary  List prefectures
// @Tags     regions
// @Produce  json
// @Success  200  {array}  models.Prefecture
// @Router   /prefectures [get]
func (h *LookupHandler) Prefectures(c *gin.Context) {
	prefs, err := h.service.Prefectures(c.Request.Context())
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// Cities godoc
// @Summary  List the cities of a prefecture
// @Tags     regions
// @Produce  json
// @Param    code  path     string  true  "prefecture code (01-47)"
// @Success  200   {array}  models.City
// @Failure  400   {object}  ErrorResponse
// @Router   /prefectures/{code}/cities [get]
func (h *LookupHandler) Cities(c *gin.Context) {
	cities, err := h.service.Cities(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, cities)
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError maps service errors onto status codes. Internal details are
// logged, never returned.
func respondError(c *gin.Context, err error, notFound string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrNotFound):
		if notFound == "" {
			notFound = "not found"
		}
		c.JSON(http.StatusNotFound, ErrorResponse{Error: notFound})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// pagination reads limit and offset, answering 400 itself when they are not integers.
func pagination(c *gin.Context, defaultLimit int) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit format"})
		return 0, 0, false
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset format"})
		return 0, 0, false
	}
	return limit, offset, true
}
