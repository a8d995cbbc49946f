package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/shazow/wifiportal/internal/config"
	wifilog "github.com/shazow/wifiportal/internal/log"
	"github.com/shazow/wifiportal/internal/store"
	"github.com/shazow/wifiportal/internal/tui"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

// main is the entry point of the application
func main() {
	var (
		rootFlagSet = flag.NewFlagSet("wifiportal", flag.ExitOnError)
		configPath  = rootFlagSet.String("config", "", "path to config toml file (env: WIFIPORTAL_CONFIG)")
		listen      = rootFlagSet.String("listen", "", "portal listen address")
		apSSID      = rootFlagSet.String("ap-ssid", "", "ssid of the provisioning access point")
		apPassword  = rootFlagSet.String("ap-password", "", "password of the provisioning access point, empty for open")
		storeDir    = rootFlagSet.String("store-dir", "", "directory for the stored credentials")
		backendName = rootFlagSet.String("backend", defaultBackend, "radio backend (auto, networkmanager, iwd, mock)")
		logLevel    = rootFlagSet.String("log-level", "", "log level (debug, info, warn, error)")
		logFile     = rootFlagSet.String("log-file", "", "write logs to a rotated file instead of stderr")
		theme       = rootFlagSet.String("theme", "", "path to theme toml file for the monitor")
		version     = rootFlagSet.Bool("version", false, "display version")
	)

	var (
		cfg  config.Config
		logs *wifilog.Output
	)

	openStore := func() (*store.FileStore, error) {
		return store.NewFileStore(cfg.Store.Dir)
	}

	runProvisioning := func(ctx context.Context, monitor bool) error {
		radio, err := GetBackend(*backendName, logs.Logger)
		if err != nil {
			return err
		}
		defer radio.Close()
		s, err := openStore()
		if err != nil {
			return err
		}
		d, err := newDaemon(cfg, radio, s, logs.Logger)
		if err != nil {
			return err
		}
		return runDaemon(ctx, d, monitor, logs.Handler)
	}

	scanFlagSet := flag.NewFlagSet("scan", flag.ExitOnError)
	scanJSON := scanFlagSet.Bool("json", false, "output in JSON format")
	scanCmd := &ffcli.Command{
		Name:      "scan",
		ShortHelp: "Scan for nearby wifi networks",
		FlagSet:   scanFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			radio, err := GetBackend(*backendName, logs.Logger)
			if err != nil {
				return err
			}
			defer radio.Close()
			mgr, err := newManager(radio, logs.Logger)
			if err != nil {
				return err
			}
			defer mgr.Close()
			records, err := scanNetworks(ctx, mgr, cfg.Station.ScanTimeout.Duration)
			if err != nil {
				return err
			}
			return runScan(os.Stdout, *scanJSON, records)
		},
	}

	statusCmd := &ffcli.Command{
		Name:      "status",
		ShortHelp: "Show whether credentials are stored",
		Exec: func(ctx context.Context, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			return runStatus(os.Stdout, s)
		},
	}

	forgetCmd := &ffcli.Command{
		Name:      "forget",
		ShortHelp: "Erase the stored credentials",
		Exec: func(ctx context.Context, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			return runForget(os.Stdout, s)
		},
	}

	qrCmd := &ffcli.Command{
		Name:      "qr",
		ShortHelp: "Print a QR code that joins the provisioning access point",
		Exec: func(ctx context.Context, args []string) error {
			return runQR(os.Stdout, cfg.Portal.SSID, cfg.Portal.Password, cfg.Portal.Listen)
		},
	}

	monitorCmd := &ffcli.Command{
		Name:      "monitor",
		ShortHelp: "Run the provisioning daemon with a status monitor",
		Exec: func(ctx context.Context, args []string) error {
			return runProvisioning(ctx, true)
		},
	}

	root := &ffcli.Command{
		ShortUsage:  "wifiportal [flags] <subcommand> [args...]",
		FlagSet:     rootFlagSet,
		Subcommands: []*ffcli.Command{scanCmd, statusCmd, forgetCmd, qrCmd, monitorCmd},
		Exec: func(ctx context.Context, args []string) error {
			return runProvisioning(ctx, false)
		},
	}

	// Parse the root flags first so the config, logger and theme are ready
	// before any subcommand runs. root.Run parses them again.
	err := ff.Parse(rootFlagSet, os.Args[1:],
		ff.WithEnvVarPrefix("WIFIPORTAL"),
		ff.WithIgnoreUndefined(true),
	)
	if err != nil {
		if err == flag.ErrHelp {
			root.FlagSet.Usage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *version {
		fmt.Println(Version)
		os.Exit(0)
	}

	cfg, err = config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, rootFlagSet, flagValues{
		listen:     *listen,
		apSSID:     *apSSID,
		apPassword: *apPassword,
		storeDir:   *storeDir,
		logLevel:   *logLevel,
		logFile:    *logFile,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := tui.LoadThemeFile(*theme); err != nil {
		fmt.Fprintf(os.Stderr, "error loading theme: %v\n", err)
		os.Exit(1)
	}

	logs, err = wifilog.Setup(cfg.Log.Level, cfg.Log.File, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = root.ParseAndRun(ctx, os.Args[1:])
	stop()
	logs.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
