package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// Config holds everything the messaging client needs. Values usually come
// from the app build (the mobile shell passes a map, see FromMap).
type Config struct {
	APIBaseURL   string `json:"apiBaseUrl"`
	WebsocketURL string `json:"websocketUrl"`
	Token        string `json:"token"` // bearer token, empty means anonymous
	UserID       string `json:"userId"`

	HTTPTimeout       time.Duration `json:"httpTimeout"`
	ReconnectDelay    time.Duration `json:"reconnectDelay"`
	HeartbeatInterval time.Duration `json:"heartbeatInterval"`
	SendQueueSize     int           `json:"sendQueueSize"`
}

func Default() Config {
	return Config{
		APIBaseURL:        "http://localhost:8080",
		WebsocketURL:      "ws://localhost:8080/ws",
		HTTPTimeout:       10 * time.Second,
		ReconnectDelay:    3 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		SendQueueSize:     256,
	}
}

// FromMap decodes a loosely typed settings map over the defaults.
// Duration fields accept strings like "10s" as well as nanosecond ints.
func FromMap(m map[string]any) (Config, error) {
	cfg := Default()
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	}
	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return cfg, errors.Wrap(err, "build config decoder")
	}
	if err := dec.Decode(m); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("config: apiBaseUrl required")
	}
	if c.WebsocketURL == "" {
		return errors.New("config: websocketUrl required")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("config: httpTimeout must be positive")
	}
	if c.SendQueueSize <= 0 {
		return errors.New("config: sendQueueSize must be positive")
	}
	return nil
}
