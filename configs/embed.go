// Package configs provides the embedded configuration template for hindex.
//
// The template is embedded at build time with go:embed so it ships inside
// every binary. `hindex check` prints its location hints and the CLI help
// for --config points here.
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/hindex/config.yaml)
//  3. Project config (.hindex.yaml)
//  4. Environment variables
//  5. Command-line flags
package configs

import _ "embed"

// ConfigTemplate is the annotated example configuration. Write it to
// .hindex.yaml and edit from there.
//
//go:embed hindex.example.yaml
var ConfigTemplate string
