package domain

import (
	"net"
	"strconv"
)

// Peer is a reachable synchronization partner, immutable after config load
type Peer struct {
	// Name is the alias, unique in the peer registry
	Name string `mapstructure:"name"`

	// Host is the peer address; the legacy config key is ip_address
	Host string `mapstructure:"ip_address"`

	// HostName is accepted as an alternative spelling of Host
	HostName string `mapstructure:"host"`

	// Port the peer's request server listens on
	Port int `mapstructure:"port"`
}

// Address returns host:port for dialing
func (p Peer) Address() string {
	return net.JoinHostPort(p.HostOrName(), strconv.Itoa(p.Port))
}

// HostOrName returns Host, falling back to HostName
func (p Peer) HostOrName() string {
	if p.Host != "" {
		return p.Host
	}
	return p.HostName
}

// RemoteConfig is one watched local directory and its peer policy
type RemoteConfig struct {
	// Name is unique across the configuration and is sent on the wire
	Name string `mapstructure:"name"`

	// LocalPath is the directory kept in sync
	LocalPath string `mapstructure:"local_path"`

	// Peers lists aliases in preference order; earlier peers win timestamp ties
	Peers []string `mapstructure:"peers"`

	// Ignore gitignore-style patterns excluded from the index
	Ignore []string `mapstructure:"ignore"`
}
