// Package directory is the HTTP client for the remote directory and
// attendance-recording service. It is the only place that touches the
// upstream wire format; everything above it works with canonical types.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// TransportError wraps any network, status, or decode failure from the
// upstream service. Callers treat it as recoverable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "directory " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Client calls the upstream service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a sane timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListUsers fetches the full directory listing. The listing is fetched
// fresh for every login attempt; no caching happens here.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL, nil)
	if err != nil {
		return nil, &TransportError{Op: "list users", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "list users", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: "list users", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, &TransportError{Op: "list users", Err: fmt.Errorf("decode listing: %w", err)}
	}
	return users, nil
}

// RecordAttendance submits one attendance event for the given record ID.
// The upstream timestamps the row itself; a non-2xx status or a body
// carrying an error field is a failure.
func (c *Client) RecordAttendance(ctx context.Context, recordID int64) (string, error) {
	body, _ := json.Marshal(map[string]int64{
		"record_user": recordID,
		"join_user":   recordID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", &TransportError{Op: "record attendance", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", &TransportError{Op: "record attendance", Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", &TransportError{Op: "record attendance", Err: errors.New(msg)}
	}
	if out.Error != "" {
		return "", &TransportError{Op: "record attendance", Err: errors.New(out.Error)}
	}
	if out.Message == "" {
		out.Message = "attendance recorded"
	}
	return out.Message, nil
}

// ListAttendance fetches the attendance history for one record ID. The
// upstream answers with either a bare array or {"data": [...]}; both are
// normalized here. JSON that parses but matches neither shape degrades to
// an empty set so the history view stays usable.
func (c *Client) ListAttendance(ctx context.Context, recordID int64) ([]Record, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, &TransportError{Op: "list attendance", Err: err}
	}
	q := u.Query()
	q.Set("record", strconv.FormatInt(recordID, 10))
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 10)) // cache buster
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransportError{Op: "list attendance", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "list attendance", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: "list attendance", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "list attendance", Err: err}
	}
	if !json.Valid(raw) {
		return nil, &TransportError{Op: "list attendance", Err: errors.New("malformed JSON body")}
	}
	return normalizeHistory(raw), nil
}

// normalizeHistory maps both accepted history shapes onto one canonical
// slice. An unrecognized shape yields an empty slice, never an error.
func normalizeHistory(raw []byte) []Record {
	var rows []Record
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows
	}
	var wrapped struct {
		Data []Record `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped.Data
	}
	return nil
}
