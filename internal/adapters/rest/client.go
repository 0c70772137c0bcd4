// Package rest is the HTTP transport of the sync client.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/domain/types"
	"github.com/okian/salesgrid/internal/syncclient"
	"github.com/okian/salesgrid/pkg/logger"
	"github.com/okian/salesgrid/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Client talks to the salesgrid HTTP API. The session cookie set by Login is
// kept in its cookie jar.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	logger  logger.Logger
}

var _ syncclient.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client. Its Jar is kept if set.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("rest: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rest: base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		http:    &http.Client{},
		timeout: defaultTimeout,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("rest: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends one request. in is JSON encoded when not nil; out is decoded from
// a 2xx body when not nil. Failures come back as syncclient errors.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, header http.Header, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordErrorByComponent("rest", "transport")
		c.logger.Debug(ctx, "request failed", logger.String("op", op), logger.Error(err))
		return &syncclient.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "request done",
		logger.String("op", op),
		logger.Int("status", resp.StatusCode),
		logger.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rej := &syncclient.ServerRejected{Op: op, Status: resp.StatusCode}
		var eb errorBody
		if raw, rerr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); rerr == nil && json.Unmarshal(raw, &eb) == nil {
			rej.Code, rej.Message = eb.Code, eb.Message
		}
		return rej
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return &syncclient.TransportError{Op: op, Err: err}
		}
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &syncclient.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func tableQuery(table sheet.TableID) url.Values {
	q := url.Values{}
	if table != "" {
		q.Set("type", string(table))
	}
	return q
}

// Me reports who the current cookie belongs to.
func (c *Client) Me(ctx context.Context) (types.MeResponse, error) {
	var out types.MeResponse
	err := c.do(ctx, "me", http.MethodGet, "/api/me", nil, nil, nil, &out)
	return out, err
}

// Login opens a server session; the cookie is stored in the jar.
func (c *Client) Login(ctx context.Context, username, password string) (types.LoginResponse, error) {
	var out types.LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/api/login", nil, nil,
		types.LoginRequest{Username: username, Password: password}, &out)
	return out, err
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/logout", nil, nil, nil, nil)
}

// FetchTable returns the sellers and cells of table.
func (c *Client) FetchTable(ctx context.Context, table sheet.TableID) (types.TableResponse, error) {
	var out types.TableResponse
	if err := c.do(ctx, "fetch table", http.MethodGet, "/api/data", tableQuery(table), nil, nil, &out); err != nil {
		return types.TableResponse{}, err
	}
	if out.Cells == nil {
		out.Cells = sheet.Snapshot{}
	}
	return out, nil
}

// SaveCell writes one cell with requestID as its idempotency key.
func (c *Client) SaveCell(ctx context.Context, table sheet.TableID, cell sheet.Cell, requestID string) (types.CellResponse, error) {
	h := http.Header{}
	if requestID != "" {
		h.Set(types.RequestIDHeader, requestID)
	}
	var out types.CellResponse
	err := c.do(ctx, "save cell", http.MethodPost, "/api/cell", nil, h, types.CellRequest{
		SheetType: string(table),
		Employee:  cell.Entity,
		Day:       string(cell.Field),
		Value:     cell.Value,
	}, &out)
	return out, err
}

// SaveTable replaces the given cells of table in one request. Admin only.
func (c *Client) SaveTable(ctx context.Context, table sheet.TableID, cells sheet.Snapshot) error {
	return c.do(ctx, "save table", http.MethodPost, "/api/data", tableQuery(table), nil,
		types.BulkSaveRequest{Cells: cells}, nil)
}

// ListUsers returns every account. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]model.Entity, error) {
	var out []model.Entity
	err := c.do(ctx, "list users", http.MethodGet, "/api/users", nil, nil, nil, &out)
	return out, err
}

// CreateUser creates an account. Admin only.
func (c *Client) CreateUser(ctx context.Context, req types.CreateUserRequest) (model.Entity, error) {
	var out model.Entity
	err := c.do(ctx, "create user", http.MethodPost, "/api/users", nil, nil, req, &out)
	return out, err
}

// UpdateUser changes email, role or position of an account. Admin only.
func (c *Client) UpdateUser(ctx context.Context, id int64, req types.UpdateUserRequest) (model.Entity, error) {
	var out model.Entity
	err := c.do(ctx, "update user", http.MethodPut, userPath(id), nil, nil, req, &out)
	return out, err
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, "delete user", http.MethodDelete, userPath(id), nil, nil, nil, nil)
}

// ChangePassword resets an account's password. Admin only.
func (c *Client) ChangePassword(ctx context.Context, id int64, newPassword string) error {
	return c.do(ctx, "change password", http.MethodPut, userPath(id)+"/password", nil, nil,
		types.ChangePasswordRequest{NewPassword: newPassword}, nil)
}

// Archive closes the week of table. secret may be empty when the session
// belongs to an admin.
func (c *Client) Archive(ctx context.Context, table sheet.TableID, secret string) (types.ArchiveResponse, error) {
	h := http.Header{}
	if secret != "" {
		h.Set(types.ArchiveSecretHeader, secret)
	}
	var out types.ArchiveResponse
	err := c.do(ctx, "archive", http.MethodPost, "/api/weekly-archive", tableQuery(table), h, nil, &out)
	return out, err
}

// WeeklyHistory lists archived weeks, newest first.
func (c *Client) WeeklyHistory(ctx context.Context, table sheet.TableID) ([]model.WeeklyArchive, error) {
	var out []model.WeeklyArchive
	err := c.do(ctx, "weekly history", http.MethodGet, "/api/weekly-history", tableQuery(table), nil, nil, &out)
	return out, err
}

// Export streams the xlsx rendering of table into w.
func (c *Client) Export(ctx context.Context, table sheet.TableID, w io.Writer) error {
	return c.do(ctx, "export", http.MethodGet, "/api/export", tableQuery(table), nil, nil, w)
}

func userPath(id int64) string {
	return "/api/users/" + strconv.FormatInt(id, 10)
}
