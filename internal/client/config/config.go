package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
)

const (
	BackendDrive = "drive"
	BackendS3    = "s3"
)

// Config holds runtime settings of the tradebook CLI.
type Config struct {
	OAuth    OAuth
	State    State
	Document Document
	Assets   Assets
	Session  Session
	Cache    Cache

	// RequestTimeout bounds every remote HTTP request.
	RequestTimeout time.Duration
	// WriteRate limits sequential row writes per second; 0 disables it.
	WriteRate float64

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

type OAuth struct {
	ClientID     string
	ClientSecret string
	Issuer       string
	Scopes       []string
	RedirectPort int
	NoBrowser    bool
}

type State struct {
	// DSN is a SQLite path or a postgres:// URL.
	DSN string
	// Passphrase seals the persisted credential when set.
	Passphrase string
}

type Document struct {
	Name              string
	RootFolder        string
	AttachmentsFolder string
}

type Assets struct {
	Backend      string
	S3           S3
	MaxDimension int
	MaxBytes     int
}

type S3 struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
	URLExpiry time.Duration
}

type Session struct {
	Horizon     time.Duration
	RefreshLead time.Duration
}

type Cache struct {
	TradesFreshness   time.Duration
	TagsFreshness     time.Duration
	SettingsFreshness time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OAuth: OAuth{
			Issuer: "https://accounts.google.com",
			Scopes: []string{
				"openid",
				"email",
				"https://www.googleapis.com/auth/spreadsheets",
				"https://www.googleapis.com/auth/drive.file",
			},
		},
		State: State{DSN: defaultStateDSN()},
		Document: Document{
			Name:              common.DefaultDocumentName,
			RootFolder:        common.DefaultRootFolderName,
			AttachmentsFolder: common.DefaultAttachmentsFolderName,
		},
		Assets: Assets{
			Backend:      BackendDrive,
			S3:           S3{Region: "us-east-1", URLExpiry: 15 * time.Minute},
			MaxDimension: 1600,
			MaxBytes:     1 << 20,
		},
		Session: Session{
			Horizon:     60 * time.Minute,
			RefreshLead: 10 * time.Minute,
		},
		Cache: Cache{
			TradesFreshness:   5 * time.Minute,
			TagsFreshness:     10 * time.Minute,
			SettingsFreshness: 10 * time.Minute,
		},
		RequestTimeout: 30 * time.Second,
		WriteRate:      5,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

func defaultStateDSN() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tradebook-state.db"
	}
	return filepath.Join(dir, "tradebook", "state.db")
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.OAuth.Issuer == "" {
		return fmt.Errorf("%w: oauth issuer is required", common.ErrValidation)
	}
	if c.OAuth.RedirectPort < 0 || c.OAuth.RedirectPort > 65535 {
		return fmt.Errorf("%w: redirect port %d out of range", common.ErrValidation, c.OAuth.RedirectPort)
	}
	if c.State.DSN == "" {
		return fmt.Errorf("%w: state dsn is required", common.ErrValidation)
	}
	if c.Document.Name == "" || c.Document.RootFolder == "" || c.Document.AttachmentsFolder == "" {
		return fmt.Errorf("%w: document and folder names must not be empty", common.ErrValidation)
	}

	switch c.Assets.Backend {
	case BackendDrive:
	case BackendS3:
		if c.Assets.S3.Bucket == "" {
			return fmt.Errorf("%w: s3 backend needs a bucket", common.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown asset backend %q", common.ErrValidation, c.Assets.Backend)
	}

	if c.Session.Horizon <= 0 || c.Session.RefreshLead <= 0 || c.Session.RefreshLead >= c.Session.Horizon {
		return fmt.Errorf("%w: refresh lead must be positive and shorter than the session horizon", common.ErrValidation)
	}
	if c.WriteRate < 0 {
		return fmt.Errorf("%w: write rate must not be negative", common.ErrValidation)
	}
	return nil
}
