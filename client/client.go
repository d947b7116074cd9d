package client

import (
	"context"
	"errors"

	"github.com/ccops/five9cm/internal/controlclient"
	"github.com/ccops/five9cm/internal/endpoint"
)

// Client is the public Go client for a running five9cm dashboard.
type Client struct {
	inner *controlclient.Client
}

// TLSOptions configures the CA used to verify https:// dashboards.
type TLSOptions struct {
	CAPath string
}

// Option configures the five9cm client.
type Option func(*options)

type options struct {
	caPath string
}

// WithTLS configures TLS options for HTTPS endpoints.
func WithTLS(opts TLSOptions) Option {
	return func(o *options) {
		o.caPath = opts.CAPath
	}
}

// New creates a client for the provided endpoint.
//
// Supported endpoint formats match the CLI:
// - http://host:port
// - https://host:port
// - unix:///path/to/five9cm.sock
//
// If host is empty, FIVE9CM_HOST is used, then http://127.0.0.1:8501.
func New(host string, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	ep, err := endpoint.Resolve(host)
	if err != nil {
		return nil, err
	}
	inner, err := controlclient.New(ep, controlclient.WithCA(o.caPath))
	if err != nil {
		return nil, err
	}
	return &Client{inner: inner}, nil
}

// BaseURL is the dashboard URL requests are sent to.
func (c *Client) BaseURL() string {
	if c == nil || c.inner == nil {
		return ""
	}
	return c.inner.BaseURL()
}

func (c *Client) ListCampaigns(ctx context.Context, req *ListCampaignsRequest) (*ListCampaignsResponse, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("nil client")
	}
	return c.inner.ListCampaigns(ctx, req)
}

func (c *Client) ApplyCampaignAction(ctx context.Context, req *ApplyCampaignActionRequest) (*ApplyCampaignActionResponse, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("nil client")
	}
	return c.inner.ApplyCampaignAction(ctx, req)
}

func (c *Client) StartInstall(ctx context.Context, req *StartInstallRequest) (*InstallStatusResponse, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("nil client")
	}
	return c.inner.StartInstall(ctx, req)
}

func (c *Client) GetInstallStatus(ctx context.Context, req *GetInstallStatusRequest) (*InstallStatusResponse, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("nil client")
	}
	return c.inner.GetInstallStatus(ctx, req)
}

func (c *Client) ResetInstall(ctx context.Context, req *ResetInstallRequest) (*InstallStatusResponse, error) {
	if c == nil || c.inner == nil {
		return nil, errors.New("nil client")
	}
	return c.inner.ResetInstall(ctx, req)
}
