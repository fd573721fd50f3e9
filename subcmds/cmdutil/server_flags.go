// Copyright (c) 2023 BVK Chaitanya

package cmdutil

import (
	"flag"
	"fmt"
	"net"
	"os"
)

type ServerFlags struct {
	Port int
	IP   string

	NoServer bool
}

func (sf *ServerFlags) SetFlags(fset *flag.FlagSet) {
	fset.IntVar(&sf.Port, "listen-port", DefaultPort, "TCP port number for the status endpoint")
	fset.StringVar(&sf.IP, "listen-ip", "127.0.0.1", "TCP ip address for the status endpoint")
	fset.BoolVar(&sf.NoServer, "no-status-server", false, "when true, status endpoint is not started")
}

// TCPAddr returns the listen address.
func (sf *ServerFlags) TCPAddr() (*net.TCPAddr, error) {
	ip := net.ParseIP(sf.IP)
	if ip == nil {
		return nil, fmt.Errorf("invalid listen ip address %q: %w", sf.IP, os.ErrInvalid)
	}
	if sf.Port < 0 || sf.Port > 65535 {
		return nil, fmt.Errorf("invalid listen port number %d: %w", sf.Port, os.ErrInvalid)
	}
	return &net.TCPAddr{IP: ip, Port: sf.Port}, nil
}
