// Package sheets is the HTTP client for the remote tabular (spreadsheet
// style) backend. The backend's only primitives are whole-range read, row
// append and clear-and-rewrite; there are no transactions, row locks or
// conditional writes. Safety on top of these primitives is the job of the
// lock, snapshot and write packages, not of this client.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/listora/listora"
)

// Store is the remote tabular backend as seen by the rest of Listora.
// Implementations must return StatusError for classified backend failures.
type Store interface {
	// ReadRows fetches the full content of one table.
	ReadRows(ctx context.Context, table string) ([]listora.Row, error)
	// AppendRows appends rows after the table's current last row.
	AppendRows(ctx context.Context, table string, rows []listora.Row) error
	// ClearAndWrite clears the table's addressable range and rewrites it
	// with rows. Used for rollback and full overwrite.
	ClearAndWrite(ctx context.Context, table string, rows []listora.Row) error
}

// valueRange is the wire shape of a table's content.
type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

// Client talks to one spreadsheet document over HTTP. A table name selects a
// tab within the document.
type Client struct {
	baseURL    string
	documentID string
	token      string
	hc         *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient substitutes the underlying http.Client (timeouts, transport).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.hc = hc }
}

// NewClient creates a Client for the given backend endpoint and document.
// token is sent as a bearer credential on every call.
func NewClient(baseURL, documentID, token string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		documentID: documentID,
		token:      token,
		hc:         &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) tableURL(table, suffix string) string {
	u := fmt.Sprintf("%s/documents/%s/values/%s", c.baseURL, c.documentID, url.PathEscape(table))
	if suffix != "" {
		u += ":" + suffix
	}
	return u
}

func (c *Client) do(ctx context.Context, method, url string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		ba, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(ba)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ba, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(ba)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ReadRows fetches the full content of table. A missing tab reads as empty
// only if the backend says so with a 200; a 404 is surfaced as StatusError.
func (c *Client) ReadRows(ctx context.Context, table string) ([]listora.Row, error) {
	var vr valueRange
	if err := c.do(ctx, http.MethodGet, c.tableURL(table, ""), nil, &vr); err != nil {
		return nil, err
	}
	rows := make([]listora.Row, len(vr.Values))
	for i := range vr.Values {
		rows[i] = listora.Row(vr.Values[i])
	}
	return rows, nil
}

// AppendRows appends rows after the current last row of table.
func (c *Client) AppendRows(ctx context.Context, table string, rows []listora.Row) error {
	return c.do(ctx, http.MethodPost, c.tableURL(table, "append"), toValueRange(rows), nil)
}

// ClearAndWrite clears table and rewrites it with rows in one backend call.
func (c *Client) ClearAndWrite(ctx context.Context, table string, rows []listora.Row) error {
	return c.do(ctx, http.MethodPost, c.tableURL(table, "clearAndWrite"), toValueRange(rows), nil)
}

func toValueRange(rows []listora.Row) valueRange {
	values := make([][]string, len(rows))
	for i := range rows {
		values[i] = []string(rows[i])
	}
	return valueRange{Values: values}
}
