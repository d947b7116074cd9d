package controlserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/ccops/five9cm/internal/campaigns"
	"github.com/ccops/five9cm/internal/controlapi"
	"github.com/ccops/five9cm/internal/controlservice"
	"github.com/ccops/five9cm/internal/endpoint"
	"github.com/ccops/five9cm/internal/installer"
	"github.com/ccops/five9cm/internal/paths"
	"github.com/ccops/five9cm/internal/pwsh"
	"github.com/ccops/five9cm/internal/session"
	"github.com/ccops/five9cm/internal/tlsconfig"
	"github.com/charmbracelet/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"tailscale.com/tsnet"
)

// TLSOptions holds explicit TLS paths for the https listener.
type TLSOptions struct {
	CertPath string
	KeyPath  string
}

// Routes is implemented by the browser dashboard.
type Routes interface {
	Register(mux *http.ServeMux)
}

type Server struct {
	service   *controlservice.Service
	dashboard Routes
	logger    *log.Logger
}

// New builds a server for service. dashboard may be nil to expose only the
// control API.
func New(service *controlservice.Service, dashboard Routes, logger *log.Logger) *Server {
	return &Server{service: service, dashboard: dashboard, logger: logger}
}

type tsnetServer interface {
	Listen(network, addr string) (net.Listener, error)
	Close() error
}

var newTSNetServer = func(ep endpoint.Endpoint, stateDir string, tsLogf func(format string, args ...any)) tsnetServer {
	return &tsnet.Server{
		Dir:      stateDir,
		Hostname: ep.TSNetHostname,
		Logf:     tsLogf,
	}
}

func tsnetLogf(logger *log.Logger) func(format string, args ...any) {
	if logger == nil {
		return nil
	}
	tsLogger := logger.With("subsystem", "tsnet")
	return func(format string, args ...any) {
		msg := strings.TrimSpace(fmt.Sprintf(format, args...))
		if msg == "" {
			return
		}
		tsLogger.Debug(msg)
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	opts := []connect.HandlerOption{connect.WithCodec(controlapi.Codec{})}

	mux.Handle(controlapi.ListCampaignsProcedure,
		connect.NewUnaryHandler(controlapi.ListCampaignsProcedure, s.ListCampaigns, opts...))
	mux.Handle(controlapi.ApplyCampaignActionProcedure,
		connect.NewUnaryHandler(controlapi.ApplyCampaignActionProcedure, s.ApplyCampaignAction, opts...))
	mux.Handle(controlapi.StartInstallProcedure,
		connect.NewUnaryHandler(controlapi.StartInstallProcedure, s.StartInstall, opts...))
	mux.Handle(controlapi.GetInstallStatusProcedure,
		connect.NewUnaryHandler(controlapi.GetInstallStatusProcedure, s.GetInstallStatus, opts...))
	mux.Handle(controlapi.ResetInstallProcedure,
		connect.NewUnaryHandler(controlapi.ResetInstallProcedure, s.ResetInstall, opts...))

	mux.HandleFunc("GET "+controlapi.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.dashboard != nil {
		s.dashboard.Register(mux)
	}
	return h2c.NewHandler(mux, &http2.Server{})
}

func (s *Server) ListCampaigns(ctx context.Context, req *connect.Request[controlapi.ListCampaignsRequest]) (*connect.Response[controlapi.ListCampaignsResponse], error) {
	res, err := s.service.ListCampaigns(ctx, req.Msg)
	if err != nil {
		return nil, s.fail(controlapi.ListCampaignsProcedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) ApplyCampaignAction(ctx context.Context, req *connect.Request[controlapi.ApplyCampaignActionRequest]) (*connect.Response[controlapi.ApplyCampaignActionResponse], error) {
	res, err := s.service.ApplyCampaignAction(ctx, req.Msg)
	if err != nil {
		return nil, s.fail(controlapi.ApplyCampaignActionProcedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) StartInstall(ctx context.Context, req *connect.Request[controlapi.StartInstallRequest]) (*connect.Response[controlapi.InstallStatusResponse], error) {
	res, err := s.service.StartModuleInstall(ctx, req.Msg)
	if err != nil {
		return nil, s.fail(controlapi.StartInstallProcedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) GetInstallStatus(ctx context.Context, req *connect.Request[controlapi.GetInstallStatusRequest]) (*connect.Response[controlapi.InstallStatusResponse], error) {
	res, err := s.service.GetInstallStatus(ctx, req.Msg)
	if err != nil {
		return nil, s.fail(controlapi.GetInstallStatusProcedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) ResetInstall(ctx context.Context, req *connect.Request[controlapi.ResetInstallRequest]) (*connect.Response[controlapi.InstallStatusResponse], error) {
	res, err := s.service.ResetModuleInstall(ctx, req.Msg)
	if err != nil {
		return nil, s.fail(controlapi.ResetInstallProcedure, err)
	}
	return connect.NewResponse(res), nil
}

func (s *Server) fail(procedure string, err error) error {
	connectErr := toConnectError(err)
	if s.logger != nil {
		code := connect.CodeOf(connectErr)
		if code == connect.CodeInternal || code == connect.CodeUnavailable {
			s.logger.Error("control API call failed", "procedure", procedure, "code", code, "error", err)
		} else {
			s.logger.Debug("control API call rejected", "procedure", procedure, "code", code, "error", err)
		}
	}
	return connectErr
}

func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	var (
		authErr    *campaigns.AuthenticationError
		launchErr  *pwsh.ProcessLaunchError
		invalidErr *controlservice.InvalidArgumentError
	)
	code := connect.CodeInternal
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, pwsh.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.As(err, &authErr):
		code = connect.CodeUnauthenticated
	case errors.As(err, &launchErr):
		code = connect.CodeUnavailable
	case errors.Is(err, session.ErrBusy):
		code = connect.CodeResourceExhausted
	case errors.As(err, &invalidErr), errors.Is(err, campaigns.ErrMissingCredentials):
		code = connect.CodeInvalidArgument
	case errors.Is(err, session.ErrNotConfirmed),
		errors.Is(err, session.ErrEmptySelection),
		errors.Is(err, session.ErrActionFilterMismatch),
		errors.Is(err, session.ErrUnknownCampaign),
		errors.Is(err, installer.ErrInstallRunning),
		errors.Is(err, installer.ErrResetRequired):
		code = connect.CodeFailedPrecondition
	}
	return connect.NewError(code, err)
}

func Serve(ctx context.Context, ep endpoint.Endpoint, handler http.Handler, logger *log.Logger, tlsOpts *TLSOptions) error {
	listener, cleanup, err := listen(ep, logger, tlsOpts)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer func() {
			_ = cleanup()
		}()
	}
	defer listener.Close()
	if logger != nil {
		logger.Info("serving five9cm dashboard", "endpoint", ep.Address, "scheme", ep.Scheme, "base_url", ep.BaseURL)
	}

	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if ep.Scheme == "https" {
		if err := http2.ConfigureServer(httpServer, nil); err != nil {
			return fmt.Errorf("configure HTTP/2 for TLS: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		if ep.Scheme == "unix" {
			_ = os.Remove(ep.Address)
		}
		if logger != nil {
			logger.Info("dashboard shutdown complete", "endpoint", ep.Address)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		if logger != nil {
			logger.Error("dashboard serve failed", "error", err)
		}
		return err
	}
}

func listen(ep endpoint.Endpoint, logger *log.Logger, tlsOpts *TLSOptions) (net.Listener, func() error, error) {
	switch ep.Scheme {
	case "unix":
		if err := os.MkdirAll(filepath.Dir(ep.Address), 0o755); err != nil {
			return nil, nil, err
		}
		if err := os.Remove(ep.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
		listener, err := net.Listen("unix", ep.Address)
		if err != nil {
			return nil, nil, err
		}
		if err := os.Chmod(ep.Address, 0o600); err != nil {
			_ = listener.Close()
			return nil, nil, err
		}
		return listener, nil, nil

	case "tsnet":
		stateDir, err := paths.TSNetStateDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve tsnet state directory: %w", err)
		}
		if err := os.MkdirAll(stateDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create tsnet state directory: %w", err)
		}
		server := newTSNetServer(ep, stateDir, tsnetLogf(logger))
		listener, err := server.Listen("tcp", ep.Address)
		if err != nil {
			_ = server.Close()
			return nil, nil, fmt.Errorf("start tsnet listener for %q: %w", ep.Address, err)
		}
		return listener, server.Close, nil

	case "https":
		var files tlsconfig.ServerFiles
		if tlsOpts != nil {
			files = tlsconfig.ServerFiles{CertPath: tlsOpts.CertPath, KeyPath: tlsOpts.KeyPath}
		}
		tlsCfg, err := tlsconfig.Server(files)
		if err != nil {
			return nil, nil, err
		}
		addr := tcpAddress(ep.Address)
		listener, err := tls.Listen("tcp", addr, tlsCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("start TLS listener for %q: %w", addr, err)
		}
		return listener, nil, nil

	case "http":
		listener, err := net.Listen("tcp", tcpAddress(ep.Address))
		return listener, nil, err
	}

	return nil, nil, fmt.Errorf("unsupported endpoint scheme %q", ep.Scheme)
}

func tcpAddress(addr string) string {
	for _, prefix := range []string{"https://", "http://"} {
		addr = strings.TrimPrefix(addr, prefix)
	}
	return strings.TrimRight(addr, "/")
}
