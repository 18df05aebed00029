package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annexparse/internal/archive"
	"annexparse/internal/config"
	"annexparse/internal/mapping"
	"annexparse/internal/pipeline"
	"annexparse/internal/storage"
)

// fakeRunner consumes one prefixed file per call, like the real driver.
type fakeRunner struct {
	dir     string
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool

	mu        sync.Mutex
	processed []string
}

func (f *fakeRunner) Run(context.Context) (pipeline.RunResult, error) {
	f.calls.Add(1)
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	time.Sleep(5 * time.Millisecond)

	name, err := archive.FindNewFile(f.dir, "BUL_ANNEX")
	if err != nil {
		return pipeline.RunResult{}, err
	}
	if err := os.Remove(filepath.Join(f.dir, name)); err != nil {
		return pipeline.RunResult{}, err
	}
	f.mu.Lock()
	f.processed = append(f.processed, name)
	f.mu.Unlock()
	return pipeline.RunResult{SourceFile: name, Count: 1}, nil
}

func (f *fakeRunner) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func startService(t *testing.T, cfg config.Config, runner Runner) (context.CancelFunc, <-chan error) {
	t.Helper()
	svc := NewService(runner, cfg, nil, WithSettle(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestStartupRunDrainsDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"BUL_ANNEX_2.xml", "BUL_ANNEX_1.xml", "other.xml"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	runner := &fakeRunner{dir: dir}
	cfg := config.Config{SourceDir: dir, SourcePrefix: "BUL_ANNEX", WatchSchedule: "@every 1h"}

	cancel, done := startService(t, cfg, runner)
	assert.Eventually(t, func() bool { return len(runner.names()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"BUL_ANNEX_1.xml", "BUL_ANNEX_2.xml"}, runner.names())

	cancel()
	require.NoError(t, <-done)
	assert.False(t, runner.overlap.Load())
}

func TestFileEventTriggersRun(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{dir: dir}
	cfg := config.Config{SourceDir: dir, SourcePrefix: "BUL_ANNEX", WatchSchedule: "@every 1h", WatchFSNotify: true}

	cancel, done := startService(t, cfg, runner)
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, "BUL_ANNEX_"+string(rune('a'+i))+".xml")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
	}
	assert.Eventually(t, func() bool { return len(runner.names()) == 3 }, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, runner.overlap.Load())
}

type failingRunner struct{ calls atomic.Int32 }

func (f *failingRunner) Run(context.Context) (pipeline.RunResult, error) {
	f.calls.Add(1)
	return pipeline.RunResult{}, errors.New("unknown pickup library")
}

func TestFailedRunDoesNotLoop(t *testing.T) {
	runner := &failingRunner{}
	cfg := config.Config{SourceDir: t.TempDir(), SourcePrefix: "BUL_ANNEX", WatchSchedule: "@every 1h"}

	cancel, done := startService(t, cfg, runner)
	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestInvalidSchedule(t *testing.T) {
	cfg := config.Config{SourceDir: t.TempDir(), WatchSchedule: "every now and then"}
	err := NewService(&failingRunner{}, cfg, nil).Run(context.Background())
	assert.Error(t, err)
}

const oneRequest = `<?xml version="1.0" encoding="UTF-8"?>
<requests>
  <rsExport>
    <itemId>%s</itemId>
    <title>Book</title>
    <barcode>B%s</barcode>
    <patronName>Doe, Jane</patronName>
    <patronIdentifier>1000000001</patronIdentifier>
    <requestType>Patron physical item request</requestType>
    <library>ANNEX</library>
    <libraryCode>ANNEX</libraryCode>
  </rsExport>
</requests>
`

// countingRunner passes through to the real driver and counts calls.
type countingRunner struct {
	svc   *pipeline.ProcessingService
	calls atomic.Int32
}

func (c *countingRunner) Run(ctx context.Context) (pipeline.RunResult, error) {
	c.calls.Add(1)
	return c.svc.Run(ctx)
}

func newDriver(t *testing.T, devMode bool) (*countingRunner, config.Config, *storage.DB) {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Config{
		SourceDir:           filepath.Join(tmp, "incoming"),
		SourcePrefix:        "BUL_ANNEX",
		ArchiveOriginalsDir: filepath.Join(tmp, "archive", "originals"),
		ArchiveParsedDir:    filepath.Join(tmp, "archive", "parsed"),
		GFACountDir:         filepath.Join(tmp, "gfa", "count"),
		GFADataDir:          filepath.Join(tmp, "gfa", "data"),
		DevMode:             devMode,
		BatchPolicy:         config.PolicyStrict,
		WatchSchedule:       "@every 1h",
	}
	require.NoError(t, os.MkdirAll(cfg.SourceDir, 0o755))

	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// a frozen clock puts every run in the same second
	frozen := time.Date(2021, time.July, 13, 13, 41, 39, 0, time.UTC)
	svc, err := pipeline.NewProcessingService(db, cfg, mapping.NewMapper(mapping.DefaultTables()), nil,
		pipeline.WithNow(func() time.Time { return frozen }))
	require.NoError(t, err)
	return &countingRunner{svc: svc}, cfg, db
}

func dropExport(t *testing.T, cfg config.Config, name, itemID string) {
	t.Helper()
	body := fmt.Sprintf(oneRequest, itemID, itemID)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SourceDir, name), []byte(body), 0o644))
}

func TestDrainKeepsEveryExportInSameSecond(t *testing.T) {
	runner, cfg, db := newDriver(t, false)
	dropExport(t, cfg, "BUL_ANNEX_a.xml", "111")
	dropExport(t, cfg, "BUL_ANNEX_b.xml", "222")

	cancel, done := startService(t, cfg, runner)
	assert.Eventually(t, func() bool {
		_, err := archive.FindNewFile(cfg.SourceDir, cfg.SourcePrefix)
		return errors.Is(err, archive.ErrNoNewFile)
	}, 3*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	entries, err := os.ReadDir(cfg.GFADataDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var items []string
	for _, e := range entries {
		blob, err := os.ReadFile(filepath.Join(cfg.GFADataDir, e.Name()))
		require.NoError(t, err)
		items = append(items, strings.SplitN(string(blob), ",", 2)[0])
	}
	assert.ElementsMatch(t, []string{`"111"`, `"222"`}, items)

	batches, err := db.ListBatches(10)
	require.NoError(t, err)
	assert.Len(t, batches, 2)
}

func TestDevModeProcessesExportOncePerTrigger(t *testing.T) {
	runner, cfg, db := newDriver(t, true)
	dropExport(t, cfg, "BUL_ANNEX_a.xml", "111")

	cancel, done := startService(t, cfg, runner)
	assert.Eventually(t, func() bool { return runner.calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), runner.calls.Load())
	batches, err := db.ListBatches(10)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	_, err = os.Stat(filepath.Join(cfg.SourceDir, "BUL_ANNEX_a.xml"))
	assert.NoError(t, err)
}
