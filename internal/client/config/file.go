package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/tradebook/internal/common"
	"github.com/dmitrijs2005/tradebook/internal/timex"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var schemaJSON []byte

const schemaURL = "https://tradebook.invalid/config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse config schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add config schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// fileConfig mirrors the config file. Pointer fields distinguish "absent"
// from zero values so only keys present in the file override defaults.
type fileConfig struct {
	OAuth *struct {
		ClientID     *string  `json:"client_id"`
		ClientSecret *string  `json:"client_secret"`
		Issuer       *string  `json:"issuer"`
		Scopes       []string `json:"scopes"`
		RedirectPort *int     `json:"redirect_port"`
		NoBrowser    *bool    `json:"no_browser"`
	} `json:"oauth"`
	State *struct {
		DSN        *string `json:"dsn"`
		Passphrase *string `json:"passphrase"`
	} `json:"state"`
	Document *struct {
		Name              *string `json:"name"`
		RootFolder        *string `json:"root_folder"`
		AttachmentsFolder *string `json:"attachments_folder"`
	} `json:"document"`
	Assets *struct {
		Backend      *string `json:"backend"`
		MaxDimension *int    `json:"max_dimension"`
		MaxBytes     *int    `json:"max_bytes"`
		S3           *struct {
			Bucket    *string         `json:"bucket"`
			Region    *string         `json:"region"`
			Endpoint  *string         `json:"endpoint"`
			AccessKey *string         `json:"access_key"`
			SecretKey *string         `json:"secret_key"`
			PublicURL *string         `json:"public_url"`
			URLExpiry *timex.Duration `json:"url_expiry"`
		} `json:"s3"`
	} `json:"assets"`
	Session *struct {
		Horizon     *timex.Duration `json:"horizon"`
		RefreshLead *timex.Duration `json:"refresh_lead"`
	} `json:"session"`
	Cache *struct {
		TradesFreshness   *timex.Duration `json:"trades_freshness"`
		TagsFreshness     *timex.Duration `json:"tags_freshness"`
		SettingsFreshness *timex.Duration `json:"settings_freshness"`
	} `json:"cache"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	WriteRate      *float64        `json:"write_rate"`
	LogLevel       *string         `json:"log_level"`
	LogFormat      *string         `json:"log_format"`
	MetricsAddr    *string         `json:"metrics_addr"`
}

// LoadFile overlays cfg with the values of the config file at path.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		data, err = yamlToJSON(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return apply(data, cfg)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// apply validates a JSON document against the schema and overlays cfg.
func apply(data []byte, cfg *Config) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: config is not valid JSON: %w", common.ErrValidation, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	fc.overlay(cfg)
	return nil
}

func (fc *fileConfig) overlay(cfg *Config) {
	if o := fc.OAuth; o != nil {
		set(&cfg.OAuth.ClientID, o.ClientID)
		set(&cfg.OAuth.ClientSecret, o.ClientSecret)
		set(&cfg.OAuth.Issuer, o.Issuer)
		if o.Scopes != nil {
			cfg.OAuth.Scopes = o.Scopes
		}
		set(&cfg.OAuth.RedirectPort, o.RedirectPort)
		set(&cfg.OAuth.NoBrowser, o.NoBrowser)
	}
	if s := fc.State; s != nil {
		set(&cfg.State.DSN, s.DSN)
		set(&cfg.State.Passphrase, s.Passphrase)
	}
	if d := fc.Document; d != nil {
		set(&cfg.Document.Name, d.Name)
		set(&cfg.Document.RootFolder, d.RootFolder)
		set(&cfg.Document.AttachmentsFolder, d.AttachmentsFolder)
	}
	if a := fc.Assets; a != nil {
		set(&cfg.Assets.Backend, a.Backend)
		set(&cfg.Assets.MaxDimension, a.MaxDimension)
		set(&cfg.Assets.MaxBytes, a.MaxBytes)
		if s3 := a.S3; s3 != nil {
			set(&cfg.Assets.S3.Bucket, s3.Bucket)
			set(&cfg.Assets.S3.Region, s3.Region)
			set(&cfg.Assets.S3.Endpoint, s3.Endpoint)
			set(&cfg.Assets.S3.AccessKey, s3.AccessKey)
			set(&cfg.Assets.S3.SecretKey, s3.SecretKey)
			set(&cfg.Assets.S3.PublicURL, s3.PublicURL)
			setDuration(&cfg.Assets.S3.URLExpiry, s3.URLExpiry)
		}
	}
	if s := fc.Session; s != nil {
		setDuration(&cfg.Session.Horizon, s.Horizon)
		setDuration(&cfg.Session.RefreshLead, s.RefreshLead)
	}
	if c := fc.Cache; c != nil {
		setDuration(&cfg.Cache.TradesFreshness, c.TradesFreshness)
		setDuration(&cfg.Cache.TagsFreshness, c.TagsFreshness)
		setDuration(&cfg.Cache.SettingsFreshness, c.SettingsFreshness)
	}
	setDuration(&cfg.RequestTimeout, fc.RequestTimeout)
	set(&cfg.WriteRate, fc.WriteRate)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.LogFormat, fc.LogFormat)
	set(&cfg.MetricsAddr, fc.MetricsAddr)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
