package main

import (
	"flag"
	"log/slog"

	"github.com/shazow/wifiportal/internal/config"
	"github.com/shazow/wifiportal/wifi"
	"github.com/shazow/wifiportal/wifi/manager"
)

type flagValues struct {
	listen, apSSID, apPassword, storeDir, logLevel, logFile string
}

// applyFlags overrides cfg with the flags that were set on the command line
// or through the environment.
func applyFlags(cfg *config.Config, fs *flag.FlagSet, v flagValues) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Portal.Listen = v.listen
		case "ap-ssid":
			cfg.Portal.SSID = v.apSSID
		case "ap-password":
			cfg.Portal.Password = v.apPassword
		case "store-dir":
			cfg.Store.Dir = v.storeDir
		case "log-level":
			cfg.Log.Level = v.logLevel
		case "log-file":
			cfg.Log.File = v.logFile
		}
	})
}

func newManager(radio wifi.Radio, logger *slog.Logger) (*manager.Manager, error) {
	return manager.New(manager.NewRadioLifecycle(radio), logger)
}
