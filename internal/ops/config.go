package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"main/pkg/conn"
)

const (
	defaultVenuePort         = 5035
	defaultHeartbeatSeconds  = 25
	defaultRequestTimeoutSec = 10
	defaultFillWaitSeconds   = 10
	defaultAmendWaitSeconds  = 3
	defaultDefaultLots       = 0.1
	defaultQueueCapacity     = 64
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Venue    VenueConfig    `json:"venue"`
	Auth     AuthConfig     `json:"auth"`
	Trading  TradingConfig  `json:"trading"`
	Postgres PostgresConfig `json:"postgres"`
	Notify   NotifyConfig   `json:"notify"`
	Pprof    PprofConfig    `json:"pprof"`
}

// VenueConfig describes the venue endpoint.
type VenueConfig struct {
	Host                  string `json:"host"`
	Port                  int    `json:"port"`
	InsecureSkipVerify    bool   `json:"insecureSkipVerify"`
	HeartbeatSeconds      int    `json:"heartbeatSeconds"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
}

// AuthConfig carries the application and account credentials.
type AuthConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	AccountID    int64  `json:"accountId"`
	AccessToken  string `json:"accessToken"`
}

// TradingConfig carries sizing defaults and flow timeouts.
type TradingConfig struct {
	DefaultLots      float64 `json:"defaultLots"`
	RiskAmount       float64 `json:"riskAmount"`
	FillWaitSeconds  int     `json:"fillWaitSeconds"`
	AmendWaitSeconds int     `json:"amendWaitSeconds"`
	QueueCapacity    int     `json:"queueCapacity"`
}

// PostgresConfig describes the trade store connection.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
}

// NotifyConfig describes the notification sink.
type NotifyConfig struct {
	WebhookURL string `json:"webhookUrl"`
}

// PprofConfig describes optional continuous profiling.
type PprofConfig struct {
	PyroscopeAddress string `json:"pyroscopeAddress"`
}

// VenueSpec is the resolved venue endpoint.
type VenueSpec struct {
	Host               string
	Port               int
	InsecureSkipVerify bool
	HeartbeatInterval  time.Duration
	RequestTimeout     time.Duration
}

// TradingSpec is the resolved trading configuration.
type TradingSpec struct {
	DefaultLots   float64
	RiskAmount    float64
	FillWait      time.Duration
	AmendWait     time.Duration
	QueueCapacity int
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Venue            VenueSpec
	Auth             AuthConfig
	Trading          TradingSpec
	Postgres         conn.Option
	WebhookURL       string
	PyroscopeAddress string
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}

	venue, err := resolveVenue(cfg.Venue)
	if err != nil {
		return Loaded{}, err
	}
	if err := validateAuth(cfg.Auth); err != nil {
		return Loaded{}, err
	}
	trading, err := resolveTrading(cfg.Trading)
	if err != nil {
		return Loaded{}, err
	}

	return Loaded{
		Venue:   venue,
		Auth:    cfg.Auth,
		Trading: trading,
		Postgres: conn.Option{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		},
		WebhookURL:       cfg.Notify.WebhookURL,
		PyroscopeAddress: cfg.Pprof.PyroscopeAddress,
	}, nil
}

func resolveVenue(cfg VenueConfig) (VenueSpec, error) {
	if cfg.Host == "" {
		return VenueSpec{}, fmt.Errorf("venue host is empty")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultVenuePort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return VenueSpec{}, fmt.Errorf("venue port out of range: %d", cfg.Port)
	}
	if cfg.HeartbeatSeconds == 0 {
		cfg.HeartbeatSeconds = defaultHeartbeatSeconds
	}
	if cfg.RequestTimeoutSeconds == 0 {
		cfg.RequestTimeoutSeconds = defaultRequestTimeoutSec
	}
	if cfg.HeartbeatSeconds < 0 || cfg.RequestTimeoutSeconds < 0 {
		return VenueSpec{}, fmt.Errorf("venue intervals must be >= 0")
	}
	return VenueSpec{
		Host:               cfg.Host,
		Port:               cfg.Port,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		HeartbeatInterval:  time.Duration(cfg.HeartbeatSeconds) * time.Second,
		RequestTimeout:     time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	}, nil
}

func validateAuth(cfg AuthConfig) error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return fmt.Errorf("auth client credentials are empty")
	}
	if cfg.AccountID == 0 {
		return fmt.Errorf("auth account id is empty")
	}
	if cfg.AccessToken == "" {
		return fmt.Errorf("auth access token is empty")
	}
	return nil
}

func resolveTrading(cfg TradingConfig) (TradingSpec, error) {
	if cfg.DefaultLots == 0 {
		cfg.DefaultLots = defaultDefaultLots
	}
	if cfg.DefaultLots < 0 {
		return TradingSpec{}, fmt.Errorf("trading defaultLots must be > 0")
	}
	if cfg.RiskAmount < 0 {
		return TradingSpec{}, fmt.Errorf("trading riskAmount must be >= 0")
	}
	if cfg.FillWaitSeconds == 0 {
		cfg.FillWaitSeconds = defaultFillWaitSeconds
	}
	if cfg.AmendWaitSeconds == 0 {
		cfg.AmendWaitSeconds = defaultAmendWaitSeconds
	}
	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.FillWaitSeconds < 0 || cfg.AmendWaitSeconds < 0 || cfg.QueueCapacity < 0 {
		return TradingSpec{}, fmt.Errorf("trading timeouts and capacity must be >= 0")
	}
	return TradingSpec{
		DefaultLots:   cfg.DefaultLots,
		RiskAmount:    cfg.RiskAmount,
		FillWait:      time.Duration(cfg.FillWaitSeconds) * time.Second,
		AmendWait:     time.Duration(cfg.AmendWaitSeconds) * time.Second,
		QueueCapacity: cfg.QueueCapacity,
	}, nil
}
