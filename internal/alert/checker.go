// Package alert mails the most recent error entries of the processing log.
package alert

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"annexparse/internal/config"
	"annexparse/internal/logger"
)

const Subject = "error found in parse-alma-exports logfile"

const legacyErrorMarker = "] ERROR ["

var errorLevels = map[string]bool{"error": true, "dpanic": true, "panic": true, "fatal": true}

// ScanErrors returns every error-level line of the log in file order. Lines
// are either zap JSON entries or older "[date] ERROR [module]" text lines.
func ScanErrors(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if isErrorLine(line) {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

func isErrorLine(line string) bool {
	if strings.Contains(line, legacyErrorMarker) {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var entry struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return false
	}
	return errorLevels[strings.ToLower(entry.Level)]
}

type Checker struct {
	sender     enmime.Sender
	from       string
	recipients []string
	logPath    string
	tail       int
	log        logger.Logger
	now        func() time.Time
}

func NewChecker(cfg config.Config, sender enmime.Sender, log logger.Logger) (*Checker, error) {
	if err := cfg.Require("ALERT_FROM", cfg.AlertFrom); err != nil {
		return nil, err
	}
	if len(cfg.AlertRecipients) == 0 {
		return nil, errors.New("missing required env var: ALERT_RECIPIENTS")
	}
	if log == nil {
		log = logger.NewNop()
	}
	tail := cfg.AlertTail
	if tail <= 0 {
		tail = 4
	}
	return &Checker{
		sender:     sender,
		from:       cfg.AlertFrom,
		recipients: cfg.AlertRecipients,
		logPath:    cfg.AlertLogPath,
		tail:       tail,
		log:        log,
		now:        time.Now,
	}, nil
}

type Result struct {
	Sent    bool
	Entries []string
	ReadErr error
}

// Run mails the last few error entries, or the reason the log could not be
// read. A clean log sends nothing.
func (c *Checker) Run() (Result, error) {
	lines, readErr := ScanErrors(c.logPath)
	res := Result{ReadErr: readErr}

	var message string
	switch {
	case len(lines) > 0:
		if len(lines) > c.tail {
			lines = lines[len(lines)-c.tail:]
		}
		res.Entries = lines
		message = strings.Join(lines, "\n")
		c.log.Debug("sending mail about log errors", logger.Int("entries", len(lines)))
	case readErr != nil:
		message = readErr.Error()
		c.log.Debug("sending mail about log read problem", logger.Err(readErr))
	default:
		c.log.Debug("no errors in log; not sending mail", logger.String("path", c.logPath))
		return res, nil
	}

	if err := c.compose(message).Send(c.sender); err != nil {
		c.log.Error("problem sending mail", logger.Err(err))
		return res, fmt.Errorf("send alert: %w", err)
	}
	res.Sent = true
	return res, nil
}

func (c *Checker) compose(message string) enmime.MailBuilder {
	body := fmt.Sprintf("datetime: `%s`\n\nlast few error-entries...\n\n%s\n\nLog path: `%s`\n\n[END]",
		c.now().Format("2006-01-02 15:04:05.000000"), message, c.logPath)

	b := enmime.Builder().
		From("", c.from).
		Subject(Subject).
		Date(c.now()).
		Text([]byte(body))
	for _, r := range c.recipients {
		b = b.To("", r)
	}
	return b
}

// NewSMTPSender sends through an unauthenticated relay, which is how the
// alert host is set up.
func NewSMTPSender(cfg config.Config) *enmime.SMTPSender {
	return enmime.NewSMTP(net.JoinHostPort(cfg.AlertSMTPHost, strconv.Itoa(cfg.AlertSMTPPort)), nil)
}
