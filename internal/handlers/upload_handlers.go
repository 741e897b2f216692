package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"popdesk/internal/services"
)

// maxUploadBytes caps the accepted file size at 20 MiB.
const maxUploadBytes = 20 << 20

// UploadHandlers runs the two-phase dataset replacement over HTTP.
type UploadHandlers struct {
	uploads services.UploadService
}

// NewUploadHandlers creates a new upload handlers instance
func NewUploadHandlers(uploads services.UploadService) *UploadHandlers {
	return &UploadHandlers{uploads: uploads}
}

// ListDatasets returns the replaceable datasets.
func (h *UploadHandlers) ListDatasets(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"datasets": h.uploads.Datasets(),
	})
}

// Preview accepts a multipart file, stages it and reports what it
// contains. Nothing is written to the backend yet.
func (h *UploadHandlers) Preview(c echo.Context) error {
	dataset := c.Param("dataset")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "A file upload is required")
	}
	if fileHeader.Size > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Uploaded file is too large")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file")
	}
	if len(data) > maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Uploaded file is too large")
	}

	preview, err := h.uploads.Preview(c.Request().Context(), dataset, fileHeader.Filename, data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, preview)
}

// ConfirmRequest carries the staging token from a previous preview.
type ConfirmRequest struct {
	Token string `json:"token" validate:"required"`
}

// Confirm replaces the dataset tab with the staged payload.
func (h *UploadHandlers) Confirm(c echo.Context) error {
	dataset := c.Param("dataset")

	var req ConfirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Upload token is required")
	}

	result, err := h.uploads.Confirm(c.Request().Context(), dataset, req.Token)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
