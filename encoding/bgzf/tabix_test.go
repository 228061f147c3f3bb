package bgzf

import (
	"bufio"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	htsbgzf "github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/tabix"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBED = "chr1\t100\t300\nchr1\t150\t320\nchr2\t10\t200\nchr2\t5000\t5200\n"

func TestCompressBED(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	bedPath := filepath.Join(tmpDir, "frags.bed")
	gzPath := bedPath + ".gz"
	require.NoError(t, ioutil.WriteFile(bedPath, []byte(testBED), 0644))
	require.NoError(t, CompressBED(ctx, bedPath, gzPath, false))

	// The bgzip output is a valid multi-member gzip file.
	f, err := os.Open(gzPath)
	require.NoError(t, err)
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, testBED, string(data))
	require.NoError(t, f.Close())

	// The source is kept.
	_, err = os.Stat(bedPath)
	require.NoError(t, err)

	indexIn, err := os.Open(gzPath + TabixSuffix)
	require.NoError(t, err)
	idx, err := tabix.ReadFrom(indexIn)
	require.NoError(t, err)
	require.NoError(t, indexIn.Close())
	assert.Equal(t, []string{"chr1", "chr2"}, idx.Names())

	chunks, err := idx.Chunks("chr2", 4000, 6000)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	f, err = os.Open(gzPath)
	require.NoError(t, err)
	defer f.Close() // nolint: errcheck
	r, err := htsbgzf.NewReader(f, 1)
	require.NoError(t, err)
	require.NoError(t, r.Seek(chunks[0].Begin))
	line, err := bufio.NewReader(r).ReadString('\n')
	require.NoError(t, err)
	// All lines share one block, so the chunk may start at an earlier line.
	assert.Contains(t, testBED, line)
}

func TestCompressBEDExists(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	bedPath := filepath.Join(tmpDir, "frags.bed")
	gzPath := bedPath + ".gz"
	require.NoError(t, ioutil.WriteFile(bedPath, []byte(testBED), 0644))
	require.NoError(t, ioutil.WriteFile(gzPath, []byte("old"), 0644))

	err := CompressBED(ctx, bedPath, gzPath, false)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Exists, err), "err: %v", err)

	require.NoError(t, CompressBED(ctx, bedPath, gzPath, true))
	_, err = os.Stat(gzPath + TabixSuffix)
	require.NoError(t, err)
}

func TestWriteBEDUnsorted(t *testing.T) {
	_, err := WriteBED(ioutil.Discard, strings.NewReader("chr1\t100\t200\nchr2\t1\t5\nchr1\t300\t400\n"))
	assert.Error(t, err)
}
