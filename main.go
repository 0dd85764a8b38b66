package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
)

var version = "0.1.0"

func debugEnabled() bool {
	return os.Getenv("INKWAKE_DEBUG") != ""
}

// dbg logs a debug message when INKWAKE_DEBUG is set.
func dbg(format string, args ...any) {
	if debugEnabled() {
		log.Printf("debug: "+format, args...)
	}
}

func warnf(format string, args ...any) {
	log.Printf("warning: "+format, args...)
}

func configDir() string {
	if d := os.Getenv("XDG_CONFIG_HOME"); d != "" {
		return filepath.Join(d, "inkwake")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "inkwake")
}

// refresh runs the configured refresh command, which is expected to
// redraw the display (rendering itself is not inkwake's business).
func refresh(command string) error {
	if command == "" {
		return nil
	}
	dbg("running refresh command: %s", command)
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("refresh command %q: %w", command, err)
	}
	return nil
}

// sleeperFromConfig assembles the timer backend, discovers wakeup key
// devices and builds the Sleeper. Returns nil when no sleep interval is
// configured.
func sleeperFromConfig(cfg *Config) (*Sleeper, error) {
	if cfg.Sleep == 0 {
		return nil, nil
	}

	var timer *Timer
	var err error
	if cfg.Suspend {
		timer, err = NewRealtimeAlarmTimer(cfg.WakeupRtc)
	} else {
		timer, err = NewMonotonicTimer()
	}
	if err != nil {
		return nil, fmt.Errorf("set up timer: %w", err)
	}

	sleeper := NewSleeper(cfg.Sleep, timer).
		Suspend(cfg.Suspend).
		SuspendGrace(cfg.SuspendGrace)

	if len(cfg.ExitKeys) > 0 {
		devices, err := WithKeys(cfg.ExitKeys).Find(cfg.InputDevices)
		if err != nil {
			timer.Close()
			return nil, fmt.Errorf("find input devices: %w", err)
		}
		sleeper.WakeupKeys(devices)
	}

	return sleeper, nil
}

func run(cfgPath string) error {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sleeper, err := sleeperFromConfig(cfg)
	if err != nil {
		return err
	}
	if sleeper != nil {
		defer sleeper.Close()
	}

	for {
		if cfg.WaitForNetwork != nil {
			if err := waitForNetwork(cfg.WaitForNetwork); err != nil {
				return err
			}
		}

		if err := refresh(cfg.RefreshCommand); err != nil {
			return err
		}

		if sleeper == nil {
			return nil
		}

		dbg("sleeping for %s", sleeper.Duration())
		wakeup, err := sleeper.Wait()
		if err != nil {
			return fmt.Errorf("sleep: %w", err)
		}
		if wakeup.Reason == ExitKeyPressed {
			fmt.Printf("inkwake: %s, exiting\n", wakeup)
			return nil
		}
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("inkwake: ")

	cfgPath := filepath.Join(configDir(), "config.yml")

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			dir := configDir()
			fmt.Printf("inkwake: initializing config in %s\n", dir)
			if err := initConfig(dir); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("inkwake: config initialized")
			return
		case "version":
			fmt.Printf("inkwake %s\n", version)
			return
		default:
			if _, err := os.Stat(os.Args[1]); err != nil {
				fmt.Fprintf(os.Stderr, "usage: inkwake [init|version|CONFIG]\n")
				os.Exit(1)
			}
			cfgPath = os.Args[1]
		}
	}

	if err := run(cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "inkwake: %v\n", err)
		os.Exit(1)
	}
}
