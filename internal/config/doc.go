// Package config provides configuration types and loading for the
// proxy.
//
// This package defines the settings model, YAML loading with
// environment variable substitution, and validation. The service map
// keeps the order in which services appear in the file.
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("configs/envproxy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
package config
