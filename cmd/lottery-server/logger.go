package main

import "github.com/fedepagnotta/lottery-server/internal/logging"

func setupLogger(level string) error {
	return logging.Init(level)
}
