// Package config loads runtime configuration for the tradebook CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see Default).
//  2. Optional config file selected with -c/--config. Files ending in .yaml
//     or .yml are read as YAML, anything else as JSON. The document is
//     validated against the embedded JSON Schema before it is applied.
//  3. Command-line flags registered by BindFlags, applied only when set.
//
// Durations in files use timex.Duration, so values can be strings like
// "5m" or integer nanoseconds:
//
//	oauth:
//	  client_id: 1234.apps.googleusercontent.com
//	session:
//	  horizon: 60m
//	  refresh_lead: 10m
//	assets:
//	  backend: s3
//	  s3:
//	    bucket: journal
//	    public_url: https://cdn.example.com/journal
package config
