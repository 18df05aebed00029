// Package archive moves export files between the drop directory, the
// archives, and the GFA pickup directories.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"annexparse/internal/config"
	"annexparse/internal/logger"
)

var (
	ErrNoNewFile  = errors.New("no new export file")
	ErrStampTaken = errors.New("archive stamp already used")
)

const (
	stampLayout = "2006-01-02T15-04-05"

	archivePerm os.FileMode = 0o640
	gfaPerm     os.FileMode = 0o666

	maxStampAttempts = 60
)

// Stamp formats t for use in archive file names, e.g. 2021-07-13T13-41-39.
func Stamp(t time.Time) string {
	return t.Format(stampLayout)
}

// FindNewFile returns the first regular file in dir whose name starts with
// prefix, in name order.
func FindNewFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("check for new file: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", ErrNoNewFile
	}
	sort.Strings(names)
	return names[0], nil
}

type Archiver struct {
	originalsDir string
	parsedDir    string
	countDir     string
	dataDir      string
	log          logger.Logger
}

func NewArchiver(cfg config.Config, log logger.Logger) *Archiver {
	if log == nil {
		log = logger.NewNop()
	}
	return &Archiver{
		originalsDir: cfg.ArchiveOriginalsDir,
		parsedDir:    cfg.ArchiveParsedDir,
		countDir:     cfg.GFACountDir,
		dataDir:      cfg.GFADataDir,
		log:          log,
	}
}

func OriginalName(stamp string) string { return fmt.Sprintf("REQ-ALMA-ORIG_%s.xml", stamp) }
func ParsedName(stamp string) string   { return fmt.Sprintf("REQ-ALMA-PARSED_%s.dat", stamp) }
func CountName(stamp string) string    { return fmt.Sprintf("REQ-PARSED_%s.cnt", stamp) }
func DataName(stamp string) string     { return fmt.Sprintf("REQ-PARSED_%s.dat", stamp) }

// CopyOriginal archives the untouched export before anything reads it. An
// archive already holding stamp is never overwritten; ErrStampTaken is
// returned instead.
func (a *Archiver) CopyOriginal(sourcePath, stamp string) (string, error) {
	dst := filepath.Join(a.originalsDir, OriginalName(stamp))
	err := copyFile(sourcePath, dst, archivePerm)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("archive original %s: %w", dst, ErrStampTaken)
	}
	if err != nil {
		return "", fmt.Errorf("archive original: %w", err)
	}
	a.log.Info("original archived", logger.String("path", dst))
	return dst, nil
}

// ClaimOriginal archives the export under the first stamp from t onward,
// one second at a time, that no earlier run has written files for. Exports
// drained within the same second therefore never share GFA file names.
func (a *Archiver) ClaimOriginal(sourcePath string, t time.Time) (string, string, error) {
	for i := 0; i < maxStampAttempts; i++ {
		stamp := Stamp(t.Add(time.Duration(i) * time.Second))
		if a.stampInUse(stamp) {
			continue
		}
		dst, err := a.CopyOriginal(sourcePath, stamp)
		if errors.Is(err, ErrStampTaken) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		if i > 0 {
			a.log.Info("stamp moved past earlier run", logger.String("wanted", Stamp(t)), logger.String("stamp", stamp))
		}
		return stamp, dst, nil
	}
	return "", "", fmt.Errorf("archive original: no free stamp from %s: %w", Stamp(t), ErrStampTaken)
}

func (a *Archiver) stampInUse(stamp string) bool {
	for _, p := range []string{
		filepath.Join(a.parsedDir, ParsedName(stamp)),
		filepath.Join(a.countDir, CountName(stamp)),
		filepath.Join(a.dataDir, DataName(stamp)),
	} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func (a *Archiver) SaveParsed(text, stamp string) (string, error) {
	dst := filepath.Join(a.parsedDir, ParsedName(stamp))
	if err := writeFile(dst, text, archivePerm); err != nil {
		return "", fmt.Errorf("archive parsed data: %w", err)
	}
	a.log.Info("parsed data archived", logger.String("path", dst))
	return dst, nil
}

func (a *Archiver) SendCountFile(content, stamp string) (string, error) {
	dst := filepath.Join(a.countDir, CountName(stamp))
	if err := a.sendToGFA(dst, content); err != nil {
		return "", fmt.Errorf("send gfa count file: %w", err)
	}
	return dst, nil
}

func (a *Archiver) SendDataFile(text, stamp string) (string, error) {
	dst := filepath.Join(a.dataDir, DataName(stamp))
	if err := a.sendToGFA(dst, text); err != nil {
		return "", fmt.Errorf("send gfa data file: %w", err)
	}
	return dst, nil
}

// sendToGFA writes a world-writable file; GFA deletes what it picks up.
// A failed chmod is logged and ignored.
func (a *Archiver) sendToGFA(dst, content string) error {
	if err := writeFile(dst, content, gfaPerm); err != nil {
		return err
	}
	if err := os.Chmod(dst, gfaPerm); err != nil {
		a.log.Warn("could not set file permissions", logger.String("path", dst), logger.Err(err))
	}
	a.log.Info("gfa file saved", logger.String("path", dst))
	return nil
}

func (a *Archiver) DeleteOriginal(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete original: %w", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete original: %s still present", path)
	}
	a.log.Info("original deleted", logger.String("path", path))
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, perm)
}

func writeFile(dst, content string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, []byte(content), perm); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err != nil {
		return err
	}
	return nil
}
