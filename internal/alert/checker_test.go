package alert

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annexparse/internal/config"
)

type fakeSender struct {
	from       string
	recipients []string
	msg        []byte
	calls      int
	err        error
}

func (f *fakeSender) Send(reversePath string, recipients []string, msg []byte) error {
	f.calls++
	f.from, f.recipients, f.msg = reversePath, recipients, msg
	return f.err
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "annexparse.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func newTestChecker(t *testing.T, logPath string, sender *fakeSender) *Checker {
	t.Helper()
	cfg := config.Config{
		AlertFrom:       "annex@example.edu",
		AlertRecipients: []string{"a@example.edu", "b@example.edu"},
		AlertTail:       4,
		AlertLogPath:    logPath,
	}
	c, err := NewChecker(cfg, sender, nil)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2021, 7, 13, 13, 41, 39, 0, time.UTC) }
	return c
}

func TestScanErrorsMixedFormats(t *testing.T) {
	path := writeLog(t,
		`{"level":"info","msg":"batch processed"}`,
		`{"level":"error","msg":"problem preparing gfa entry","item_id":"42"}`,
		`[13/Jul/2021 13:41:39] ERROR [controller-run()::88] problem`,
		`[13/Jul/2021 13:41:40] DEBUG [controller-run()::90] fine`,
		`{"level":"fatal","msg":"boom"}`,
		`not json {"level":"error"}`,
	)
	lines, err := ScanErrors(path)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "problem preparing gfa entry")
	assert.Contains(t, lines[1], "] ERROR [")
	assert.Contains(t, lines[2], "boom")
}

func TestRunMailsLastEntries(t *testing.T) {
	lines := []string{}
	for i := 0; i < 6; i++ {
		lines = append(lines, `{"level":"error","msg":"failure `+string(rune('0'+i))+`"}`)
	}
	path := writeLog(t, lines...)
	sender := &fakeSender{}

	res, err := newTestChecker(t, path, sender).Run()
	require.NoError(t, err)
	assert.True(t, res.Sent)
	require.Len(t, res.Entries, 4)
	assert.Contains(t, res.Entries[0], "failure 2")

	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "annex@example.edu", sender.from)
	assert.ElementsMatch(t, []string{"a@example.edu", "b@example.edu"}, sender.recipients)

	env, err := enmime.ReadEnvelope(bytes.NewReader(sender.msg))
	require.NoError(t, err)
	assert.Equal(t, Subject, env.GetHeader("Subject"))
	assert.Contains(t, env.Text, "datetime: `2021-07-13 13:41:39.000000`")
	assert.Contains(t, env.Text, "failure 5")
	assert.NotContains(t, env.Text, "failure 1")
	assert.Contains(t, env.Text, "Log path: `"+path+"`")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(env.Text), "[END]"))
}

func TestRunCleanLogSendsNothing(t *testing.T) {
	path := writeLog(t, `{"level":"info","msg":"batch processed"}`)
	sender := &fakeSender{}

	res, err := newTestChecker(t, path, sender).Run()
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, 0, sender.calls)
}

func TestRunUnreadableLogMailsReason(t *testing.T) {
	sender := &fakeSender{}
	missing := filepath.Join(t.TempDir(), "missing.log")

	res, err := newTestChecker(t, missing, sender).Run()
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Error(t, res.ReadErr)

	env, err := enmime.ReadEnvelope(bytes.NewReader(sender.msg))
	require.NoError(t, err)
	assert.Contains(t, env.Text, "missing.log")
}

func TestRunSendFailure(t *testing.T) {
	path := writeLog(t, `{"level":"error","msg":"x"}`)
	sender := &fakeSender{err: errors.New("relay refused")}

	res, err := newTestChecker(t, path, sender).Run()
	assert.Error(t, err)
	assert.False(t, res.Sent)
}

func TestNewCheckerRequiresAddresses(t *testing.T) {
	_, err := NewChecker(config.Config{AlertRecipients: []string{"a@example.edu"}}, &fakeSender{}, nil)
	assert.Error(t, err)
	_, err = NewChecker(config.Config{AlertFrom: "x@example.edu"}, &fakeSender{}, nil)
	assert.Error(t, err)
}
