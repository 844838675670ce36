package cmd

import (
	"lowpan.xyz/schc/internal/config"
	"lowpan.xyz/schc/internal/metrics"
)

func startMetrics(cfg *config.Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path).Start()
}
