package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/google"

	"popdesk/internal/common"
	"popdesk/internal/models"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com"
	sheetsScope    = "https://www.googleapis.com/auth/spreadsheets"

	// Dimensions for a freshly created tab, matching what the backend UI
	// gives a blank sheet.
	newTabRows = 1000
	newTabCols = 26
)

// Client implements Store against the Google Sheets v4 values REST API,
// authenticated as a service account.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient authenticates with service-account credentials JSON and returns
// a ready client.
func NewClient(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}
	log.Printf("DEBUG: Sheets client using service account %s", cfg.Email)
	return &Client{httpClient: cfg.Client(ctx), baseURL: defaultBaseURL}, nil
}

// NewClientWithHTTP builds a client on a caller-supplied HTTP client and
// base URL. Used by tests to point at a local stub server.
func NewClientWithHTTP(httpClient *http.Client, baseURL string) *Client {
	return &Client{httpClient: httpClient, baseURL: strings.TrimSuffix(baseURL, "/")}
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values"`
}

// ReadTab fetches a whole tab and builds a snapshot from it. The first row
// is the header row.
func (c *Client) ReadTab(ctx context.Context, sheetID, tab string) (*models.Snapshot, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=ROWS",
		c.baseURL, url.PathEscape(sheetID), url.PathEscape(quoteTab(tab)))

	var vr valueRange
	if err := c.do(ctx, http.MethodGet, "read", u, nil, &vr); err != nil {
		return nil, err
	}
	return BuildSnapshot(vr.Values), nil
}

// WriteTab overwrites the whole tab with the snapshot's values.
func (c *Client) WriteTab(ctx context.Context, sheetID, tab string, snap *models.Snapshot) error {
	return c.WriteTabStreaming(ctx, sheetID, tab, SliceRows(snap.Values()), 800)
}

// WriteTabStreaming clears the tab and rewrites it from the row source in
// rectangular blocks of batchRows, creating the tab when absent and
// resizing it to the final dimensions afterwards. Memory use is bounded by
// the batch size, not the table size.
func (c *Client) WriteTabStreaming(ctx context.Context, sheetID, tab string, rows RowSource, batchRows int) error {
	if batchRows <= 0 {
		batchRows = 800
	}

	numericID, err := c.ensureTab(ctx, sheetID, tab)
	if err != nil {
		return err
	}
	if err := c.clearTab(ctx, sheetID, tab); err != nil {
		return err
	}

	var (
		buffer   [][]string
		startRow = 1
		maxCols  = 0
	)

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		endRow := startRow + len(buffer) - 1
		rect := make([][]string, len(buffer))
		for i, row := range buffer {
			rect[i] = padTo(row, maxCols)
		}
		rangeA1 := fmt.Sprintf("%s!A%d:%s%d", quoteTab(tab), startRow, colName(maxCols), endRow)
		if err := c.updateValues(ctx, sheetID, rangeA1, rect); err != nil {
			return err
		}
		startRow = endRow + 1
		buffer = buffer[:0]
		return nil
	}

	for {
		row, ok := rows()
		if !ok {
			break
		}
		if len(row) > maxCols {
			maxCols = len(row)
		}
		buffer = append(buffer, row)
		if len(buffer) >= batchRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if startRow > 1 {
		return c.resizeTab(ctx, sheetID, numericID, startRow-1, maxCols)
	}
	return nil
}

// ensureTab returns the tab's numeric sheet ID, creating the tab when the
// spreadsheet does not have it yet.
func (c *Client) ensureTab(ctx context.Context, sheetID, tab string) (int64, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s?fields=sheets.properties", c.baseURL, url.PathEscape(sheetID))

	var meta struct {
		Sheets []struct {
			Properties struct {
				SheetID int64  `json:"sheetId"`
				Title   string `json:"title"`
			} `json:"properties"`
		} `json:"sheets"`
	}
	if err := c.do(ctx, http.MethodGet, "metadata", u, nil, &meta); err != nil {
		return 0, err
	}
	for _, s := range meta.Sheets {
		if s.Properties.Title == tab {
			return s.Properties.SheetID, nil
		}
	}

	body := map[string]any{
		"requests": []map[string]any{{
			"addSheet": map[string]any{
				"properties": map[string]any{
					"title": tab,
					"gridProperties": map[string]any{
						"rowCount":    newTabRows,
						"columnCount": newTabCols,
					},
				},
			},
		}},
	}
	var reply struct {
		Replies []struct {
			AddSheet struct {
				Properties struct {
					SheetID int64 `json:"sheetId"`
				} `json:"properties"`
			} `json:"addSheet"`
		} `json:"replies"`
	}
	u = fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(sheetID))
	if err := c.do(ctx, http.MethodPost, "addSheet", u, body, &reply); err != nil {
		return 0, err
	}
	if len(reply.Replies) == 0 {
		return 0, common.NewUpstreamError("addSheet", fmt.Errorf("no reply for created tab %q", tab))
	}
	log.Printf("DEBUG: created missing tab %q in sheet %s", tab, sheetID)
	return reply.Replies[0].AddSheet.Properties.SheetID, nil
}

func (c *Client) clearTab(ctx context.Context, sheetID, tab string) error {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:clear",
		c.baseURL, url.PathEscape(sheetID), url.PathEscape(quoteTab(tab)))
	return c.do(ctx, http.MethodPost, "clear", u, map[string]any{}, nil)
}

func (c *Client) updateValues(ctx context.Context, sheetID, rangeA1 string, values [][]string) error {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?valueInputOption=RAW",
		c.baseURL, url.PathEscape(sheetID), url.PathEscape(rangeA1))
	body := valueRange{Range: rangeA1, MajorDimension: "ROWS", Values: values}
	return c.do(ctx, http.MethodPut, "update", u, body, nil)
}

func (c *Client) resizeTab(ctx context.Context, sheetID string, numericID int64, rowCount, colCount int) error {
	body := map[string]any{
		"requests": []map[string]any{{
			"updateSheetProperties": map[string]any{
				"properties": map[string]any{
					"sheetId": numericID,
					"gridProperties": map[string]any{
						"rowCount":    rowCount,
						"columnCount": colCount,
					},
				},
				"fields": "gridProperties(rowCount,columnCount)",
			},
		}},
	}
	u := fmt.Sprintf("%s/v4/spreadsheets/%s:batchUpdate", c.baseURL, url.PathEscape(sheetID))
	return c.do(ctx, http.MethodPost, "resize", u, body, nil)
}

// do sends one API request and decodes the JSON response into out when out
// is non-nil. Non-2xx responses are classified: 429 and RATE_LIMIT bodies
// become RateLimitError, everything else UpstreamError.
func (c *Client) do(ctx context.Context, method, op, u string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewUpstreamError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		errBody := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
		if resp.StatusCode == http.StatusTooManyRequests || strings.Contains(string(detail), "RATE_LIMIT") {
			return common.NewRateLimitError(op, errBody)
		}
		return common.NewUpstreamError(op, errBody)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return common.NewUpstreamError(op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

// quoteTab wraps a tab title in single quotes for an A1 range, escaping
// embedded quotes.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// colName converts a 1-based column number to its A1 letters (1 -> A,
// 27 -> AA).
func colName(n int) string {
	if n < 1 {
		n = 1
	}
	name := ""
	for n > 0 {
		n--
		name = string(rune('A'+n%26)) + name
		n /= 26
	}
	return name
}

func padTo(row []string, cols int) []string {
	if len(row) >= cols {
		return row[:cols]
	}
	padded := make([]string, cols)
	copy(padded, row)
	return padded
}
