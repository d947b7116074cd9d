package controlclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"

	"connectrpc.com/connect"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/endpoint"
	"github.com/ccops/five9cm/internal/tlsconfig"
	"golang.org/x/net/http2"
)

type Client struct {
	baseURL string

	listCampaigns *connect.Client[controlapi.ListCampaignsRequest, controlapi.ListCampaignsResponse]
	applyAction   *connect.Client[controlapi.ApplyCampaignActionRequest, controlapi.ApplyCampaignActionResponse]
	startInstall  *connect.Client[controlapi.StartInstallRequest, controlapi.InstallStatusResponse]
	installStatus *connect.Client[controlapi.GetInstallStatusRequest, controlapi.InstallStatusResponse]
	resetInstall  *connect.Client[controlapi.ResetInstallRequest, controlapi.InstallStatusResponse]
}

// Option configures the client.
type Option func(*options)

type options struct {
	caPath     string
	httpClient *http.Client
}

// WithCA sets the CA bundle used to verify https endpoints.
func WithCA(path string) Option {
	return func(o *options) {
		o.caPath = path
	}
}

// WithHTTPClient replaces the transport built from the endpoint.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

func New(ep endpoint.Endpoint, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	baseURL := strings.TrimRight(ep.BaseURL, "/")
	httpClient := o.httpClient
	if httpClient == nil {
		transport, err := buildTransport(ep, baseURL, o.caPath)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Transport: transport}
	}

	clientOpts := []connect.ClientOption{connect.WithCodec(controlapi.Codec{})}
	return &Client{
		baseURL: baseURL,
		listCampaigns: connect.NewClient[controlapi.ListCampaignsRequest, controlapi.ListCampaignsResponse](
			httpClient, baseURL+controlapi.ListCampaignsProcedure, clientOpts...),
		applyAction: connect.NewClient[controlapi.ApplyCampaignActionRequest, controlapi.ApplyCampaignActionResponse](
			httpClient, baseURL+controlapi.ApplyCampaignActionProcedure, clientOpts...),
		startInstall: connect.NewClient[controlapi.StartInstallRequest, controlapi.InstallStatusResponse](
			httpClient, baseURL+controlapi.StartInstallProcedure, clientOpts...),
		installStatus: connect.NewClient[controlapi.GetInstallStatusRequest, controlapi.InstallStatusResponse](
			httpClient, baseURL+controlapi.GetInstallStatusProcedure, clientOpts...),
		resetInstall: connect.NewClient[controlapi.ResetInstallRequest, controlapi.InstallStatusResponse](
			httpClient, baseURL+controlapi.ResetInstallProcedure, clientOpts...),
	}, nil
}

func buildTransport(ep endpoint.Endpoint, baseURL string, caPath string) (http.RoundTripper, error) {
	dialer := &net.Dialer{}

	if ep.Scheme == "https" {
		tlsCfg, err := tlsconfig.Client(caPath)
		if err != nil {
			return nil, err
		}
		return &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			TLSClientConfig:   tlsCfg,
			ForceAttemptHTTP2: true,
		}, nil
	}

	if ep.Scheme == "unix" {
		return &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, _, _ string, _ *tls.Config) (net.Conn, error) {
				return dialer.DialContext(ctx, "unix", ep.Address)
			},
		}, nil
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return &http.Transport{}, nil
	}
	host := parsed.Host
	return &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, _, _ string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", host)
		},
	}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) ListCampaigns(ctx context.Context, req *controlapi.ListCampaignsRequest) (*controlapi.ListCampaignsResponse, error) {
	res, err := c.listCampaigns.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ApplyCampaignAction(ctx context.Context, req *controlapi.ApplyCampaignActionRequest) (*controlapi.ApplyCampaignActionResponse, error) {
	res, err := c.applyAction.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) StartInstall(ctx context.Context, req *controlapi.StartInstallRequest) (*controlapi.InstallStatusResponse, error) {
	res, err := c.startInstall.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) GetInstallStatus(ctx context.Context, req *controlapi.GetInstallStatusRequest) (*controlapi.InstallStatusResponse, error) {
	res, err := c.installStatus.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) ResetInstall(ctx context.Context, req *controlapi.ResetInstallRequest) (*controlapi.InstallStatusResponse, error) {
	res, err := c.resetInstall.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
