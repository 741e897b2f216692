package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"popdesk/internal/services"
)

// SearchHandlers serves POP-code lookups and workbook exports.
type SearchHandlers struct {
	search services.SearchService
	export services.ExportService
}

// NewSearchHandlers creates a new search handlers instance
func NewSearchHandlers(search services.SearchService, export services.ExportService) *SearchHandlers {
	return &SearchHandlers{
		search: search,
		export: export,
	}
}

// LookupResponse is the full answer for one POP code.
type LookupResponse struct {
	Code     string                   `json:"code"`
	Datasets []services.DatasetResult `json:"datasets"`
}

// Lookup returns the matching rows of every dataset for a POP code.
// Columns named in the exclude query parameter are removed from the
// response, comma separated.
func (h *SearchHandlers) Lookup(c echo.Context) error {
	code := c.Param("code")
	if strings.TrimSpace(code) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "POP code is required")
	}

	results, err := h.search.Lookup(c.Request().Context(), code, excludeParam(c))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LookupResponse{Code: code, Datasets: results})
}

// Export streams an xlsx workbook with one sheet per dataset for the code.
func (h *SearchHandlers) Export(c echo.Context) error {
	code := c.Param("code")
	if strings.TrimSpace(code) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "POP code is required")
	}

	data, filename, err := h.export.Export(c.Request().Context(), code)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func excludeParam(c echo.Context) []string {
	raw := c.QueryParam("exclude")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
