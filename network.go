package main

import (
	"fmt"
	"net/http"
	"time"
)

// NetworkConfig describes the connectivity probe run before each
// refresh cycle.
type NetworkConfig struct {
	URL     string
	Timeout time.Duration
}

const networkProbeInterval = 3 * time.Second

// waitForNetwork polls the configured endpoint until it answers or the
// timeout elapses. Wi-Fi needs a few seconds to reassociate after a
// resume from suspend.
func waitForNetwork(cfg *NetworkConfig) error {
	dbg("waiting for network with %s", cfg.URL)

	client := &http.Client{Timeout: networkProbeInterval}
	start := time.Now()
	for time.Since(start) < cfg.Timeout {
		resp, err := client.Get(cfg.URL)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		dbg("network probe failed: %v", err)
		time.Sleep(networkProbeInterval)
	}

	return fmt.Errorf("timed out waiting for network: unable to reach %q after %s", cfg.URL, cfg.Timeout)
}
