package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	port               int
	listenBacklog      int
	numberOfClients    int
	loggingLevel       string
	barrierTimeout     time.Duration
	acceptPollInterval time.Duration
	betsFile           string
	winningNumber      string
	metricsAddr        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	port := flag.Int("port", 12345, "TCP listen port")
	listenBacklog := flag.Int("listen-backlog", 5, "TCP listen backlog (validated only; the listener uses the OS default backlog)")
	numberOfClients := flag.Int("clients", 1, "Expected number of agency connections")
	loggingLevel := flag.String("logging-level", "INFO", "Log level: DEBUG|INFO|WARNING|ERROR|CRITICAL")
	barrierTimeout := flag.Duration("barrier-timeout", 2*time.Second, "Bound on the draw barrier's wait for all agencies")
	acceptPollInterval := flag.Duration("accept-poll-interval", 5*time.Second, "Bound on accept blocking so the shutdown flag is observed")
	betsFile := flag.String("bets-file", "bets.csv", "Path to the bet store's backing CSV file")
	winningNumber := flag.String("winning-number", "7574", "The winning lottery number bets are drawn against")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g. :9090); empty disables")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.port = *port
	cfg.listenBacklog = *listenBacklog
	cfg.numberOfClients = *numberOfClients
	cfg.loggingLevel = *loggingLevel
	cfg.barrierTimeout = *barrierTimeout
	cfg.acceptPollInterval = *acceptPollInterval
	cfg.betsFile = *betsFile
	cfg.winningNumber = *winningNumber
	cfg.metricsAddr = *metricsAddr

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.port <= 0 || c.port > 65535 {
		return fmt.Errorf("port must be in 1-65535 (got %d)", c.port)
	}
	if c.listenBacklog <= 0 {
		return fmt.Errorf("listen-backlog must be > 0 (got %d)", c.listenBacklog)
	}
	if c.numberOfClients <= 0 {
		return fmt.Errorf("clients must be > 0 (got %d)", c.numberOfClients)
	}
	switch strings.ToUpper(c.loggingLevel) {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL":
	default:
		return fmt.Errorf("invalid logging-level: %s", c.loggingLevel)
	}
	if c.barrierTimeout <= 0 {
		return fmt.Errorf("barrier-timeout must be > 0")
	}
	if c.acceptPollInterval <= 0 {
		return fmt.Errorf("accept-poll-interval must be > 0")
	}
	if c.betsFile == "" {
		return errors.New("bets-file must not be empty")
	}
	if c.winningNumber == "" {
		return errors.New("winning-number must not be empty")
	}
	return nil
}

// applyEnvOverrides maps SERVER_* environment variables onto cfg unless the
// corresponding flag was explicitly set (flags win over environment).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["port"]; !ok {
		if v, ok := get("SERVER_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.port = n
			} else {
				firstErr = firstNonNil(firstErr, fmt.Errorf("invalid SERVER_PORT: %w", err))
			}
		}
	}
	if _, ok := set["listen-backlog"]; !ok {
		if v, ok := get("SERVER_LISTEN_BACKLOG"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.listenBacklog = n
			} else {
				firstErr = firstNonNil(firstErr, fmt.Errorf("invalid SERVER_LISTEN_BACKLOG: %w", err))
			}
		}
	}
	if _, ok := set["clients"]; !ok {
		if v, ok := get("SERVER_NUMBER_OF_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.numberOfClients = n
			} else {
				firstErr = firstNonNil(firstErr, fmt.Errorf("invalid SERVER_NUMBER_OF_CLIENTS: %w", err))
			}
		}
	}
	if _, ok := set["logging-level"]; !ok {
		if v, ok := get("SERVER_LOGGING_LEVEL"); ok && v != "" {
			c.loggingLevel = v
		}
	}
	if _, ok := set["barrier-timeout"]; !ok {
		if v, ok := get("SERVER_BARRIER_TIMEOUT"); ok && v != "" {
			if d, err := parseSecondsOrDuration(v); err == nil {
				c.barrierTimeout = d
			} else {
				firstErr = firstNonNil(firstErr, fmt.Errorf("invalid SERVER_BARRIER_TIMEOUT: %w", err))
			}
		}
	}
	if _, ok := set["accept-poll-interval"]; !ok {
		if v, ok := get("SERVER_ACCEPT_POLL_INTERVAL"); ok && v != "" {
			if d, err := parseSecondsOrDuration(v); err == nil {
				c.acceptPollInterval = d
			} else {
				firstErr = firstNonNil(firstErr, fmt.Errorf("invalid SERVER_ACCEPT_POLL_INTERVAL: %w", err))
			}
		}
	}
	if _, ok := set["bets-file"]; !ok {
		if v, ok := get("SERVER_BETS_FILE"); ok && v != "" {
			c.betsFile = v
		}
	}
	if _, ok := set["winning-number"]; !ok {
		if v, ok := get("SERVER_WINNING_NUMBER"); ok && v != "" {
			c.winningNumber = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("SERVER_METRICS_ADDR"); ok {
			c.metricsAddr = v
		}
	}
	return firstErr
}

// parseSecondsOrDuration accepts either a bare integer (seconds, matching
// the original config format) or a Go duration string like "500ms".
func parseSecondsOrDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func firstNonNil(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
