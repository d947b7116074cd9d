package endpoint

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Endpoint is a resolved listen or dial target for the dashboard and control API.
type Endpoint struct {
	Scheme  string
	Address string
	BaseURL string

	TSNetHostname string
	TSNetPort     int
}

const (
	DefaultAddress       = "127.0.0.1:8501"
	DefaultTSNetHostname = "five9cm"
	DefaultTSNetPort     = 80

	// HostEnv overrides the endpoint when no explicit value is given.
	HostEnv = "FIVE9CM_HOST"
)

func Default() Endpoint {
	return Endpoint{
		Scheme:  "http",
		Address: DefaultAddress,
		BaseURL: "http://" + DefaultAddress,
	}
}

// ResolveListen resolves an endpoint for server-side listening.
func ResolveListen(raw string) (Endpoint, error) {
	return resolve(raw, true)
}

// Resolve resolves an endpoint a client can dial.
func Resolve(raw string) (Endpoint, error) {
	return resolve(raw, false)
}

func resolve(raw string, listen bool) (Endpoint, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = strings.TrimSpace(os.Getenv(HostEnv))
	}
	if value == "" {
		return Default(), nil
	}

	switch {
	case strings.HasPrefix(value, "unix://"):
		path := strings.TrimPrefix(value, "unix://")
		if path == "" {
			return Endpoint{}, fmt.Errorf("invalid unix endpoint %q", value)
		}
		return Endpoint{Scheme: "unix", Address: path, BaseURL: "http://unix"}, nil
	case strings.HasPrefix(value, "/"):
		return Endpoint{Scheme: "unix", Address: value, BaseURL: "http://unix"}, nil
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		scheme, hostport, _ := strings.Cut(value, "://")
		hostport = strings.TrimRight(hostport, "/")
		if hostport == "" {
			return Endpoint{}, fmt.Errorf("invalid %s endpoint %q", scheme, value)
		}
		return Endpoint{Scheme: scheme, Address: hostport, BaseURL: scheme + "://" + hostport}, nil
	case strings.HasPrefix(value, "tsnet://"):
		if !listen {
			return Endpoint{}, fmt.Errorf("tsnet endpoint %q is only valid for serve --listen; dial the tailnet address over http:// instead", value)
		}
		return resolveTSNet(value)
	default:
		return Endpoint{}, fmt.Errorf("unsupported endpoint %q (expected http://, https://, unix://, tsnet:// or an absolute socket path)", value)
	}
}

func resolveTSNet(value string) (Endpoint, error) {
	rest := strings.TrimRight(strings.TrimPrefix(value, "tsnet://"), "/")
	hostname := DefaultTSNetHostname
	port := DefaultTSNetPort

	if rest != "" {
		host, portText, err := net.SplitHostPort(rest)
		if err != nil {
			host = rest
			portText = ""
		}
		if host != "" {
			hostname = host
		}
		if portText != "" {
			p, err := strconv.Atoi(portText)
			if err != nil || p <= 0 || p > 65535 {
				return Endpoint{}, fmt.Errorf("invalid tsnet port in %q", value)
			}
			port = p
		}
	}

	addr := ":" + strconv.Itoa(port)
	return Endpoint{
		Scheme:        "tsnet",
		Address:       addr,
		BaseURL:       "http://" + hostname + addr,
		TSNetHostname: hostname,
		TSNetPort:     port,
	}, nil
}
