// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// DefaultPort is the default status endpoint port.
const DefaultPort = 10100

// PortEnvKey names the environment variable that overrides the default
// status endpoint port for client commands.
const PortEnvKey = "RANGEBOT_SERVER_PORT"

// ClientFlags hold the status endpoint address for commands that query a
// running supervisor.
type ClientFlags struct {
	port        int
	Host        string
	HTTPTimeout time.Duration
}

func (cf *ClientFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&cf.port, "connect-port", 0, "TCP port number for the status endpoint (default=10100 or "+PortEnvKey+" value)")
	fset.StringVar(&cf.Host, "connect-host", "127.0.0.1", "Hostname or IP address for the status endpoint")
	fset.DurationVar(&cf.HTTPTimeout, "http-timeout", 30*time.Second, "http client timeout")
}

// SetPort overrides the connect-port flag value.
func (cf *ClientFlags) SetPort(port int) {
	cf.port = port
}

// Port returns the connect-port flag value, the port from the environment or
// the default port, in that order.
func (cf *ClientFlags) Port() int {
	if cf.port != 0 {
		return cf.port
	}
	if port, err := strconv.ParseUint(os.Getenv(PortEnvKey), 10, 16); err == nil && port != 0 {
		return int(port)
	}
	return DefaultPort
}

// Get fetches the json response for a path on the status endpoint.
func Get[RESP any](ctx context.Context, cf *ClientFlags, path string) (*RESP, error) {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(cf.Host, strconv.Itoa(cf.Port())),
		Path:   path,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: cf.HTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s returned http status %d: %s", u.Path, resp.StatusCode, data)
	}
	response := new(RESP)
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("could not decode %s response: %w", u.Path, err)
	}
	return response, nil
}
