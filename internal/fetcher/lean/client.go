package lean

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/fetchd/internal/fetch"
)

// Name identifies this backend in the registry and in error messages.
const Name = "lean"

// Config controls the protocol client.
type Config struct {
	// Addr is the fetch service endpoint, fixed per deployment.
	Addr string
	// Timeout is transmitted to the service, which bounds its own fetch
	// attempt. The client itself applies no deadline beyond what the
	// caller's context carries.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client implements fetch.Backend against an externally-run fetch service.
// One connection is opened per call, so request/response correlation is
// satisfied by connection identity; the id field stays on the wire for a
// future multiplexed design.
type Client struct {
	cfg    Config
	dialer net.Dialer
	logger *zap.Logger
	nextID atomic.Int64
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("lean service address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: cfg.Logger}, nil
}

type writeCloser interface {
	CloseWrite() error
}

// Fetch performs one request/response exchange with the fetch service.
func (c *Client) Fetch(ctx context.Context, target fetch.Target) (fetch.Result, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("dial %s: %w", c.cfg.Addr, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
				fmt.Errorf("set deadline: %w", err))
		}
	}

	id := c.nextID.Add(1)
	payload := MarshalRequest(Request{
		ID:      id,
		URL:     target.URL,
		Timeout: int32(c.cfg.Timeout / time.Second),
	})
	if _, err := conn.Write(payload); err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("write request: %w", err))
	}

	// Half-close signals end of request; the read side stays open.
	cw, ok := conn.(writeCloser)
	if !ok {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("connection %T does not support half-close", conn))
	}
	if err := cw.CloseWrite(); err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("close write side: %w", err))
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindConnectionFailed, Name,
			fmt.Errorf("read response: %w", err))
	}
	if len(raw) == 0 {
		return fetch.Result{}, fetch.NewError(fetch.KindProtocolError, Name,
			fmt.Errorf("service closed connection without a response"))
	}

	resp, err := UnmarshalResponse(raw)
	if err != nil {
		return fetch.Result{}, fetch.NewError(fetch.KindProtocolError, Name, err)
	}
	if resp.ID != id {
		// Advisory only: one request per connection makes the id redundant
		// today, and the service is trusted to pair messages correctly.
		c.logger.Warn("lean response id does not match request",
			zap.Int64("request_id", id),
			zap.Int64("response_id", resp.ID))
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		c.logger.Debug("lean service reported non-2xx status",
			zap.String("url", target.URL),
			zap.Int32("status_code", resp.StatusCode))
	}

	return fetch.Result{
		Body:       resp.Data,
		FinalURL:   target.URL, // the service does not report redirects
		StatusCode: int(resp.StatusCode),
	}, nil
}
