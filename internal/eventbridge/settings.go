package eventbridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/skilltree/internal/config"
)

const (
	DefaultHost = "127.0.0.1"
	// DefaultPort is where serve listens and where panels look for it.
	DefaultPort = 8742
	// DefaultMaxBodyBytes caps one POSTed event. Score events are tiny.
	DefaultMaxBodyBytes int64 = 64 << 10

	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = time.Minute

	envPrefix = "SKILLTREE_BRIDGE_"
)

// Settings configures the bridge server.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings is an enabled loopback bridge on DefaultPort.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
}

// SettingsFromConfig layers the bridge section of the project config, then
// SKILLTREE_BRIDGE_ENABLED, _HOST and _PORT, over the defaults.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	if cfg != nil {
		s.merge(cfg.Project.Bridge)
	}
	s.merge(bridgeFromEnv())
	if !validPort(s.Port) {
		s.Port = DefaultPort
	}
	return s
}

// merge applies the fields b sets. Invalid ports are ignored.
func (s *Settings) merge(b config.BridgeConfig) {
	if b.Enabled != nil {
		s.Enabled = *b.Enabled
	}
	if host := strings.TrimSpace(b.Host); host != "" {
		s.Host = host
	}
	if validPort(b.Port) {
		s.Port = b.Port
	}
}

func bridgeFromEnv() config.BridgeConfig {
	var b config.BridgeConfig
	if v, ok := lookupEnv("ENABLED"); ok {
		if on, err := strconv.ParseBool(v); err == nil {
			b.Enabled = &on
		}
	}
	if v, ok := lookupEnv("HOST"); ok {
		b.Host = v
	}
	if v, ok := lookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			b.Port = port
		}
	}
	return b
}

func lookupEnv(name string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + name))
	return v, v != ""
}

// Address is host:port.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL is the base URL panels publish to.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}
