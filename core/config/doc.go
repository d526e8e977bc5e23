// Package config provides configuration management for vmsync.
//
// It utilizes Viper for loading configuration from environment variables
// and an optional .env file.
//
// # Configuration Structure
//
// The Config struct is the central repository for all settings, divided
// into subsections:
//   - Netbox: mirror inventory API endpoint and token
//   - Vsphere: source platform API endpoint and credentials
//   - Sync: site policy (cluster override table)
//   - Log: logging level and format
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Netbox.URL)
package config
