package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		port:               12345,
		listenBacklog:      5,
		numberOfClients:    1,
		loggingLevel:       "INFO",
		barrierTimeout:     2 * time.Second,
		acceptPollInterval: 5 * time.Second,
		betsFile:           "bets.csv",
		winningNumber:      "7574",
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badPort", func(c *appConfig) { c.port = 0 }},
		{"portTooLarge", func(c *appConfig) { c.port = 70000 }},
		{"badBacklog", func(c *appConfig) { c.listenBacklog = 0 }},
		{"badClients", func(c *appConfig) { c.numberOfClients = 0 }},
		{"badLevel", func(c *appConfig) { c.loggingLevel = "NOPE" }},
		{"badBarrierTimeout", func(c *appConfig) { c.barrierTimeout = 0 }},
		{"badAcceptPollInterval", func(c *appConfig) { c.acceptPollInterval = 0 }},
		{"emptyBetsFile", func(c *appConfig) { c.betsFile = "" }},
		{"emptyWinningNumber", func(c *appConfig) { c.winningNumber = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := baseConfig()
			tc.mod(c)
			if err := c.validate(); err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
		})
	}
}
