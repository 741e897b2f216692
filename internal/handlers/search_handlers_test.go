package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"popdesk/internal/common"
	"popdesk/internal/models"
	"popdesk/internal/services"
)

type fakeSearch struct {
	lastCode    string
	lastExclude []string
	results     []services.DatasetResult
	err         error
}

func (f *fakeSearch) Datasets() []services.Dataset {
	return []services.Dataset{{Name: "bases", Tab: "Bases POP"}}
}

func (f *fakeSearch) Lookup(ctx context.Context, code string, exclude []string) ([]services.DatasetResult, error) {
	f.lastCode = code
	f.lastExclude = exclude
	return f.results, f.err
}

func newLookupContext(t *testing.T, target, code string) (echo.Context, *httptest.ResponseRecorder, *echo.Echo) {
	t.Helper()
	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(nil, nil)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/pop/:code")
	c.SetParamNames("code")
	c.SetParamValues(code)
	return c, rec, e
}

func TestLookupHandler(t *testing.T) {
	search := &fakeSearch{results: []services.DatasetResult{{
		Dataset: "bases",
		Tab:     "Bases POP",
		Columns: []string{"POP", "Ciudad"},
		Rows:    []models.Row{{"POP": "abc", "Ciudad": "Quito"}},
	}}}
	h := NewSearchHandlers(search, nil)

	c, rec, _ := newLookupContext(t, "/api/pop/abc?exclude=Secreto,%20Notas", "abc")
	require.NoError(t, h.Lookup(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", search.lastCode)
	assert.Equal(t, []string{"Secreto", "Notas"}, search.lastExclude)

	var resp LookupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.Code)
	require.Len(t, resp.Datasets, 1)
	assert.Equal(t, "Quito", resp.Datasets[0].Rows[0]["Ciudad"])
}

func TestLookupHandlerBlankCode(t *testing.T) {
	h := NewSearchHandlers(&fakeSearch{}, nil)

	c, _, _ := newLookupContext(t, "/api/pop/%20", "  ")
	err := h.Lookup(c)
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestErrorHandlerMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", common.NewValidationError("file", "bad"), http.StatusBadRequest},
		{"not found", common.NewNotFoundError("upload token"), http.StatusNotFound},
		{"auth", common.NewAuthError("invalid credentials"), http.StatusUnauthorized},
		{"rate limit", common.NewRateLimitError("read", assert.AnError), http.StatusServiceUnavailable},
		{"upstream", common.NewUpstreamError("read", assert.AnError), http.StatusBadGateway},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			NewHTTPErrorHandler(nil, nil)(tc.err, c)
			assert.Equal(t, tc.code, rec.Code)

			var resp common.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error.Code)
		})
	}
}
