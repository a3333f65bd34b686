// Package challan issues the outward and inward challans that accompany goods
// sent to and returned from outsourcing vendors.
package challan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/loomline/erp-backend/pkg/config"
	pkgerrors "github.com/loomline/erp-backend/pkg/errors"
	"github.com/loomline/erp-backend/pkg/logger"
)

const (
	outwardPath                   = "challans/outward"
	inwardPath                    = "challans/inward"
	responseBodyReadLimit   int64 = 1024
	defaultRequestTimeout         = 15 * time.Second
	defaultBreakerFailures        = 5
	defaultBreakerOpenDelay       = 30 * time.Second
)

var errBaseURLRequired = errors.New("challan base url is required")

// Direction tells the document service which way goods are moving.
type Direction string

const (
	DirectionOutward Direction = "outward"
	DirectionInward  Direction = "inward"
)

// DocumentRequest identifies the stage the challan is raised for.
type DocumentRequest struct {
	StageID   uuid.UUID `json:"stageId"`
	OrderID   uuid.UUID `json:"orderId"`
	StageName string    `json:"stageName"`
	VendorRef string    `json:"vendorRef,omitempty"`
}

// Document is the issued challan.
type Document struct {
	Reference string    `json:"reference"`
	Direction Direction `json:"direction"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// Client talks to the challan service through a circuit breaker. An open
// breaker fails fast with a dependency error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the challan client from configuration.
func NewClient(cfg config.ChallanConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = defaultBreakerOpenDelay
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logg:       logg,
	}
	client.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "challan",
		MaxRequests: 1,
		Timeout:     openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if client.logg == nil {
				return
			}
			ctx := client.logg.WithFields(context.Background(), map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			client.logg.Warn(ctx, "challan circuit breaker state changed")
		},
	})

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// IssueOutwardDocument raises the challan that travels with goods to a vendor.
func (c *Client) IssueOutwardDocument(ctx context.Context, req DocumentRequest) (*Document, error) {
	return c.issue(ctx, outwardPath, DirectionOutward, req)
}

// IssueInwardDocument raises the challan expected back from the vendor.
func (c *Client) IssueInwardDocument(ctx context.Context, req DocumentRequest) (*Document, error) {
	return c.issue(ctx, inwardPath, DirectionInward, req)
}

var errBreakerOpen = errors.New("challan circuit breaker is open")

// Ping reports the client as unavailable while the breaker is open. It does
// not call the service, so readiness checks never trip or reset the breaker.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.breaker == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "challan client not configured")
	}
	if c.breaker.State() == gobreaker.StateOpen {
		return errBreakerOpen
	}
	return nil
}

func (c *Client) issue(ctx context.Context, path string, direction Direction, req DocumentRequest) (*Document, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "challan client not configured")
	}
	if req.StageID == uuid.Nil || req.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stage and order ids are required")
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "challan service unavailable")
	}
	if err != nil {
		return nil, err
	}

	doc := result.(*Document)
	if doc.Direction == "" {
		doc.Direction = direction
	}
	return doc, nil
}

func (c *Client) post(ctx context.Context, path string, req DocumentRequest) (*Document, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal challan request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build challan request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.StageID.String()+":"+path)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute challan request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "challan request failed")
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode challan response")
	}
	if strings.TrimSpace(doc.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "challan response missing reference")
	}
	return &doc, nil
}
