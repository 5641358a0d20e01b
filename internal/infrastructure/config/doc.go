// Package config handles loading and validating the Deebot integration configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with DEEBOT_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Broker and InfluxDB credentials should be supplied through the environment
// rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Deebot.TopicPrefix)
package config
