package interval_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/cfdna/interval"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBED = `track name=test
# comment
chr1	100	300	frag1	.	+
chr1	50	60

chr2	0	10
`

func TestBEDScanner(t *testing.T) {
	s := interval.NewBEDScanner(strings.NewReader(testBED))
	var got []interval.Entry
	for s.Scan() {
		got = append(got, s.Entry())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []interval.Entry{
		{"chr1", 100, 300},
		{"chr1", 50, 60},
		{"chr2", 0, 10},
	}, got)
}

func TestBEDScannerErrors(t *testing.T) {
	for _, bad := range []string{
		"chr1\t100\n",
		"chr1\tabc\t200\n",
		"chr1\t300\t200\n",
		"chr1\t-1\t200\n",
	} {
		s := interval.NewBEDScanner(strings.NewReader(bad))
		for s.Scan() {
		}
		assert.Error(t, s.Err(), bad)
	}
}

func TestReadBEDEntriesGzip(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	plainPath := filepath.Join(tempDir, "regions.bed")
	require.NoError(t, ioutil.WriteFile(plainPath, []byte(testBED), 0644))

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(testBED))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	gzPath := filepath.Join(tempDir, "regions.bed.gz")
	require.NoError(t, ioutil.WriteFile(gzPath, buf.Bytes(), 0644))

	ctx := context.Background()
	plain, err := interval.ReadBEDEntries(ctx, plainPath)
	require.NoError(t, err)
	gz, err := interval.ReadBEDEntries(ctx, gzPath)
	require.NoError(t, err)
	assert.Equal(t, plain, gz)
	assert.Len(t, plain, 3)
}
