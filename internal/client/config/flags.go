package config

import (
	"github.com/spf13/pflag"
)

// Flags binds command-line overrides to a flag set. Only flags the user
// actually set take part in Load.
type Flags struct {
	fs   *pflag.FlagSet
	path string
	v    Config
}

// BindFlags registers the configuration flags on fs, typically the
// persistent flags of the root command.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, v: Default()}
	v := &f.v

	fs.StringVarP(&f.path, "config", "c", "", "path to a JSON or YAML config file")

	fs.StringVar(&v.OAuth.ClientID, "client-id", v.OAuth.ClientID, "OAuth client id")
	fs.StringVar(&v.OAuth.ClientSecret, "client-secret", v.OAuth.ClientSecret, "OAuth client secret")
	fs.StringVar(&v.OAuth.Issuer, "issuer", v.OAuth.Issuer, "OIDC issuer URL")
	fs.StringSliceVar(&v.OAuth.Scopes, "scopes", v.OAuth.Scopes, "OAuth scopes")
	fs.IntVar(&v.OAuth.RedirectPort, "redirect-port", v.OAuth.RedirectPort, "loopback port for the OAuth redirect (0 picks a free one)")
	fs.BoolVar(&v.OAuth.NoBrowser, "no-browser", v.OAuth.NoBrowser, "print the consent URL and read the code from the terminal")

	fs.StringVar(&v.State.DSN, "state", v.State.DSN, "local state database: a SQLite path or a postgres:// URL")
	fs.StringVar(&v.State.Passphrase, "passphrase", v.State.Passphrase, "passphrase sealing the stored credential")

	fs.StringVar(&v.Document.Name, "document", v.Document.Name, "title of the journal spreadsheet")
	fs.StringVar(&v.Assets.Backend, "assets", v.Assets.Backend, "attachment storage: drive or s3")
	fs.StringVar(&v.Assets.S3.Bucket, "s3-bucket", v.Assets.S3.Bucket, "S3 bucket for attachments")
	fs.StringVar(&v.Assets.S3.Endpoint, "s3-endpoint", v.Assets.S3.Endpoint, "S3-compatible endpoint URL")

	fs.DurationVar(&v.RequestTimeout, "timeout", v.RequestTimeout, "timeout of a single remote request")
	fs.Float64Var(&v.WriteRate, "write-rate", v.WriteRate, "sequential row writes per second (0 = unlimited)")

	fs.StringVar(&v.LogLevel, "log-level", v.LogLevel, "debug, info, warn or error")
	fs.StringVar(&v.LogFormat, "log-format", v.LogFormat, "text or json")
	fs.StringVar(&v.MetricsAddr, "metrics-addr", v.MetricsAddr, "serve Prometheus metrics on this address")

	return f
}

// Load merges defaults, the config file and the flags that were set, then
// validates the result.
func (f *Flags) Load() (*Config, error) {
	cfg := Default()
	if f.path != "" {
		if err := LoadFile(f.path, &cfg); err != nil {
			return nil, err
		}
	}

	f.fs.Visit(func(fl *pflag.Flag) {
		f.overlay(fl.Name, &cfg)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (f *Flags) overlay(name string, cfg *Config) {
	v := &f.v
	switch name {
	case "client-id":
		cfg.OAuth.ClientID = v.OAuth.ClientID
	case "client-secret":
		cfg.OAuth.ClientSecret = v.OAuth.ClientSecret
	case "issuer":
		cfg.OAuth.Issuer = v.OAuth.Issuer
	case "scopes":
		cfg.OAuth.Scopes = v.OAuth.Scopes
	case "redirect-port":
		cfg.OAuth.RedirectPort = v.OAuth.RedirectPort
	case "no-browser":
		cfg.OAuth.NoBrowser = v.OAuth.NoBrowser
	case "state":
		cfg.State.DSN = v.State.DSN
	case "passphrase":
		cfg.State.Passphrase = v.State.Passphrase
	case "document":
		cfg.Document.Name = v.Document.Name
	case "assets":
		cfg.Assets.Backend = v.Assets.Backend
	case "s3-bucket":
		cfg.Assets.S3.Bucket = v.Assets.S3.Bucket
	case "s3-endpoint":
		cfg.Assets.S3.Endpoint = v.Assets.S3.Endpoint
	case "timeout":
		cfg.RequestTimeout = v.RequestTimeout
	case "write-rate":
		cfg.WriteRate = v.WriteRate
	case "log-level":
		cfg.LogLevel = v.LogLevel
	case "log-format":
		cfg.LogFormat = v.LogFormat
	case "metrics-addr":
		cfg.MetricsAddr = v.MetricsAddr
	}
}
