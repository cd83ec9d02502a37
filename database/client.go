// Package database is a client for the runit document database. CRUD calls
// go over HTTP through a Client-owned transport; live change feeds are
// delivered over WebSocket by Subscribe.
//
//	client, err := database.NewFromEnv()
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	orders, err := client.Collection("orders")
//	if err != nil {
//		return err
//	}
//	res, err := orders.Find(ctx, database.Filter{"status": "open"}, nil)
package database

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"runitdb/internal/config"
	"runitdb/internal/realtime"
	"runitdb/internal/transport"
	"runitdb/logging"
)

type Config struct {
	Endpoint  string
	APIKey    string
	ProjectID string

	// Timeout applies to each HTTP attempt. Zero means 30s.
	Timeout time.Duration
	// HTTPClient replaces the pooled default client.
	HTTPClient *http.Client
	Retry      *RetryPolicy
	// ReconnectDelay is the fixed wait between subscription reconnects.
	// Zero means 5s.
	ReconnectDelay time.Duration
	// Logger defaults to a logger with terminal output disabled.
	Logger *logging.Logger
}

// Client is safe for concurrent use. Collection handles share its transport.
type Client struct {
	cfg       Config
	endpoints config.APIEndpoints
	transport *transport.Transport
	stream    realtime.Stream
	logger    *logging.Logger
}

func New(cfg Config) (*Client, error) {
	conn := config.Connection{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey, ProjectID: cfg.ProjectID}
	if err := config.ValidateRequired(conn); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	endpoints, err := config.BuildEndpoints(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Quiet()
	}

	tr := transport.New(transport.Options{
		HTTP:    cfg.HTTPClient,
		Timeout: cfg.Timeout,
		Retry:   cfg.Retry,
		Logger:  logger,
	})
	tr.SetBearerToken(cfg.APIKey)

	return &Client{
		cfg:       cfg,
		endpoints: endpoints,
		transport: tr,
		stream: realtime.Stream{
			ReconnectDelay: cfg.ReconnectDelay,
			Logger:         logger,
		},
		logger: logger,
	}, nil
}

// NewFromEnv builds a client from RUNIT_API_ENDPOINT, RUNIT_API_KEY and
// RUNIT_PROJECT_ID, reading .env first when present. Fields set in
// overrides win over the environment.
func NewFromEnv(overrides ...Config) (*Client, error) {
	var cfg Config
	if len(overrides) > 0 {
		cfg = overrides[0]
	}
	conn := config.Connection{Endpoint: cfg.Endpoint, APIKey: cfg.APIKey, ProjectID: cfg.ProjectID}.Merge(config.FromEnv())
	cfg.Endpoint = conn.Endpoint
	cfg.APIKey = conn.APIKey
	cfg.ProjectID = conn.ProjectID
	return New(cfg)
}

// Collection returns a handle for the named collection.
func (c *Client) Collection(name string) (*CollectionHandle, error) {
	validated, err := ValidateIdentifier(name)
	if err != nil {
		return nil, fmt.Errorf("collection name: %w", err)
	}
	return &CollectionHandle{
		client: c,
		name:   validated,
		logger: c.logger.With(logging.Field("collection", validated)),
		base:   c.endpoints.DocumentsURL + url.PathEscape(c.cfg.ProjectID) + "/" + validated,
	}, nil
}

func (c *Client) ProjectID() string {
	return c.cfg.ProjectID
}

func (c *Client) Endpoint() string {
	return c.endpoints.BaseURL
}

// SetHeaders adds headers to every subsequent HTTP request.
func (c *Client) SetHeaders(headers map[string]string) {
	c.transport.SetHeaders(headers)
}

func (c *Client) SetTimeout(timeout time.Duration) {
	c.transport.SetTimeout(timeout)
}

// Close releases pooled HTTP connections. Running subscriptions are not
// affected; stop them through their handles.
func (c *Client) Close() {
	c.transport.Close()
}
