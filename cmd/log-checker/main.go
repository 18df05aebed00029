// Command log-checker mails recent error entries from the annexparse log.
// It is meant to run from cron shortly after each processing run.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jhillyerd/enmime"

	"annexparse/internal/alert"
	gmailsender "annexparse/internal/alert/gmail"
	"annexparse/internal/config"
	"annexparse/internal/logger"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, OutputPaths: []string{"stderr"}})
	must(err)
	defer func() { _ = log.Sync() }()

	sender, err := makeSender(cfg)
	must(err)

	checker, err := alert.NewChecker(cfg, sender, log)
	must(err)

	res, err := checker.Run()
	must(err)
	if res.Sent {
		log.Info("alert sent", logger.Int("entries", len(res.Entries)), logger.String("log", cfg.AlertLogPath))
	}
}

func makeSender(cfg config.Config) (enmime.Sender, error) {
	switch cfg.AlertProvider {
	case "smtp":
		return alert.NewSMTPSender(cfg), nil
	case "gmail":
		return gmailsender.NewSender(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unsupported ALERT_PROVIDER: %s", cfg.AlertProvider)
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
