package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExport = `<?xml version="1.0" encoding="UTF-8"?>
<requests>
  <rsExport>
    <itemId>123</itemId>
    <title>Book</title>
    <barcode>31236000000000</barcode>
    <patronName>Doe, Jane</patronName>
    <patronIdentifier>1000000001</patronIdentifier>
    <requestType>Patron physical item request</requestType>
    <library>Rockefeller Library</library>
    <libraryCode>ROCK</libraryCode>
  </rsExport>
</requests>
`

func setEnv(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	vars := map[string]string{
		"SOURCE_DIR":            filepath.Join(tmp, "incoming"),
		"ARCHIVE_ORIGINALS_DIR": filepath.Join(tmp, "archive", "originals"),
		"ARCHIVE_PARSED_DIR":    filepath.Join(tmp, "archive", "parsed"),
		"GFA_COUNT_DIR":         filepath.Join(tmp, "gfa", "count"),
		"GFA_DATA_DIR":          filepath.Join(tmp, "gfa", "data"),
		"DB_PATH":               filepath.Join(tmp, "app.db"),
		"LOG_PATH":              filepath.Join(tmp, "logs", "annexparse.log"),
		"OUTPUT_DIR":            filepath.Join(tmp, "out"),
		"MAPPING_PATH":          "",
		"BATCH_POLICY":          "strict",
		"DEV_MODE":              "false",
		"LOG_LEVEL":             "error",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
	require.NoError(t, os.MkdirAll(vars["SOURCE_DIR"], 0o755))
	return tmp
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestProcessWithNothingToDo(t *testing.T) {
	setEnv(t)
	out, _, err := execute(t, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "no annex requests found; quitting")
}

func TestProcessThenListAndExport(t *testing.T) {
	tmp := setEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "incoming", "BUL_ANNEX_1.xml"), []byte(sampleExport), 0o644))

	out, _, err := execute(t, "process")
	require.NoError(t, err)
	assert.Contains(t, out, "count=1")

	entries, err := os.ReadDir(filepath.Join(tmp, "gfa", "data"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	out, _, err = execute(t, "batches", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "BUL_ANNEX_1.xml")
	assert.Contains(t, out, "processed")

	xlsx := filepath.Join(tmp, "report.xlsx")
	out, _, err = execute(t, "export", "--batch", "1", "--out", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 requests")
	_, err = os.Stat(xlsx)
	assert.NoError(t, err)
}

func TestParseIsADryRun(t *testing.T) {
	tmp := setEnv(t)
	input := filepath.Join(tmp, "export.xml")
	require.NoError(t, os.WriteFile(input, []byte(sampleExport), 0o644))

	out, errOut, err := execute(t, "parse", "--input", input, "--date", "2021-07-13")
	require.NoError(t, err)
	assert.Equal(t, `"123","31236000000000","RO","QS","Doe, Jane","1000000001","Book","Tue Jul 13 2021","no_note"`+"\n", out)
	assert.True(t, strings.HasSuffix(errOut, "1\n"))

	_, err = os.Stat(filepath.Join(tmp, "gfa"))
	assert.True(t, os.IsNotExist(err))
}

func TestParseRejectsBadDate(t *testing.T) {
	tmp := setEnv(t)
	_, _, err := execute(t, "parse", "--input", filepath.Join(tmp, "x.xml"), "--date", "13/07/2021")
	assert.Error(t, err)
}

func TestMappingPrintsBuiltInTables(t *testing.T) {
	setEnv(t)
	out, _, err := execute(t, "mapping")
	require.NoError(t, err)
	assert.Contains(t, out, "vocabulary: built-in")
	assert.Contains(t, out, "Rockefeller Library")
	assert.Contains(t, out, "ANNEX_HAY")
	assert.Contains(t, out, "electronic delivery location: QS")
}

func TestMappingRejectsBadFile(t *testing.T) {
	tmp := setEnv(t)
	path := filepath.Join(tmp, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pickup_to_delivery_stop: {X: ZZ}\n"), 0o644))
	_, _, err := execute(t, "mapping", "--path", path)
	assert.Error(t, err)
}

func TestProcessRejectsBadMappingFile(t *testing.T) {
	tmp := setEnv(t)
	path := filepath.Join(tmp, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pickup_to_delivery_stop: {X: ZZ}\n"), 0o644))
	t.Setenv("MAPPING_PATH", path)

	_, _, err := execute(t, "process")
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(tmp, "app.db"))
	assert.True(t, os.IsNotExist(err))
}
