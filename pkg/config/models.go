package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	LogLevel  string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Address          string
	Auth             AuthConfig
	ConnectionLimit  ConnectionLimitConfig `mapstructure:"connectionLimit"`
	HandshakeTimeout time.Duration         `mapstructure:"handshakeTimeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

// ConnectionLimitConfig bounds live connections per user. MaxPerUser <= 0
// disables the limit (multi-device). Mode "cycle" with MaxPerUser 1 gives
// single-active-session behavior: a new handshake evicts the oldest.
type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	SendBuffer  int           `mapstructure:"sendBuffer"`
}
