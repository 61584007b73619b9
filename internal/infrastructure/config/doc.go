// Package config loads and validates AccessGuard Core configuration.
//
// Values come from three layers, later layers winning:
//   - Default() values
//   - the YAML file passed to Load
//   - ACCESSGUARD_* environment variables
//
// Secrets (MQTT password, JWT secret, InfluxDB token, S3 keys) belong in the
// environment rather than the file. Validate collects every problem it finds
// so an operator can fix a broken file in one pass.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Topic)
package config
