package util_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cfdna/util"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/gosh"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		in   interface{}
		want []interface{}
	}{
		{nil, nil},
		{1, []interface{}{1}},
		{"abc", []interface{}{"abc"}},
		{[]byte("ab"), []interface{}{[]byte("ab")}},
		{[]int{}, nil},
		{[]int{1, 2}, []interface{}{1, 2}},
		{[]interface{}{1, []interface{}{2, []interface{}{3, "ab"}, 4}}, []interface{}{1, 2, 3, "ab", 4}},
		{[]interface{}{1, []int{2, 3}, "ab", [][]string{{"c"}, {}, {"d", "e"}}},
			[]interface{}{1, 2, 3, "ab", "c", "d", "e"}},
		{[]interface{}{[]interface{}{[]interface{}{}}, nil, [2]int{4, 5}},
			[]interface{}{nil, 4, 5}},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, util.FlattenAll(test.in), "input: %v", test.in)
	}
}

func TestFlattenIterator(t *testing.T) {
	it := util.Flatten([]interface{}{"x", []string{"y"}})
	require.True(t, it.Scan())
	expect.EQ(t, it.Value(), "x")
	require.True(t, it.Scan())
	expect.EQ(t, it.Value(), "y")
	expect.False(t, it.Scan())
	expect.False(t, it.Scan())
}

func TestRemoveSuffixes(t *testing.T) {
	tests := []struct {
		s        string
		suffixes []string
		want     string
	}{
		{"abcXYZabc", []string{"abc"}, "XYZ"},
		{"sample.sorted.bam", []string{".bam", ".sorted"}, "sample"},
		{"sample.bam", []string{".sorted", ".bam"}, "sample"},
		{"sample.bam.bai", []string{".bam"}, "sample.bam.bai"},
		{"x", nil, "x"},
		{"x", []string{""}, "x"},
	}
	for _, test := range tests {
		expect.EQ(t, util.RemoveSuffixes(test.s, test.suffixes), test.want, test.s)
	}
}

func TestIsAlphaOrDigit(t *testing.T) {
	expect.True(t, util.IsAlphaOrDigit("abc"))
	expect.True(t, util.IsAlphaOrDigit("123"))
	expect.False(t, util.IsAlphaOrDigit("abc123"))
	expect.False(t, util.IsAlphaOrDigit(""))
	expect.False(t, util.IsAlphaOrDigit("a_b"))
}

func TestGunzip(t *testing.T) {
	ctx := context.Background()
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(dir, "frags.bed.gz")
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte("chr1\t0\t10\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	outPath, err := util.Gunzip(ctx, path)
	require.NoError(t, err)
	expect.EQ(t, outPath, filepath.Join(dir, "frags.bed"))
	data, err := ioutil.ReadFile(outPath)
	require.NoError(t, err)
	expect.EQ(t, string(data), "chr1\t0\t10\n")
	// The input is kept.
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = util.Gunzip(ctx, filepath.Join(dir, "frags.bed"))
	assert.True(t, errors.Is(errors.Invalid, err), "err: %v", err)

	_, err = util.Gunzip(ctx, filepath.Join(dir, ".gz"))
	assert.True(t, errors.Is(errors.Invalid, err), "err: %v", err)

	_, err = util.Gunzip(ctx, filepath.Join(dir, "missing.gz"))
	assert.Error(t, err)

	notGzip := filepath.Join(dir, "plain.txt.gz")
	require.NoError(t, ioutil.WriteFile(notGzip, []byte("hello"), 0644))
	_, err = util.Gunzip(ctx, notGzip)
	assert.True(t, errors.Is(errors.Invalid, err), "err: %v", err)
}

func TestGunzipPath(t *testing.T) {
	expect.EQ(t, util.GunzipPath("a.bed.gz"), "a.bed")
	expect.EQ(t, util.GunzipPath("a.gz.bed.gz"), "a.bed")
	expect.EQ(t, util.GunzipPath("/x.gzdir/a.gz"), "/x.gzdir/a")
	expect.EQ(t, util.GunzipPath("s.gz/t.gz/.gz"), "s.gz/t.gz/")
}

func TestRunCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, util.RunCommandTo(&out, "echo hi; echo err >&2"))
	assert.Contains(t, out.String(), "hi\n")
	assert.Contains(t, out.String(), "err\n")

	out.Reset()
	err := util.RunCommandTo(&out, "echo before; exit 3")
	require.Error(t, err)
	cmdErr, ok := err.(*util.CommandError)
	require.True(t, ok, "err: %v", err)
	expect.EQ(t, cmdErr.ExitCode, 3)
	expect.EQ(t, cmdErr.Cmd, "echo before; exit 3")
	expect.EQ(t, out.String(), "before\n")
}

func TestRunCommandMatchesShell(t *testing.T) {
	sh := gosh.NewShell(t)
	defer sh.Cleanup()
	const cmdLine = "for i in 1 2 3; do echo line$i; done"
	want := sh.Cmd("sh", "-c", cmdLine).CombinedOutput()
	var out bytes.Buffer
	require.NoError(t, util.RunCommandTo(&out, cmdLine))
	expect.EQ(t, out.String(), want)
}

func TestRunCommandOutputAsIs(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, util.RunCommandTo(&out, "printf 'no-newline'"))
	expect.EQ(t, out.String(), "no-newline")

	// One line much longer than any read buffer.
	out.Reset()
	require.NoError(t, util.RunCommandTo(&out, "head -c 20000000 /dev/zero | tr '\\0' a; echo"))
	expect.EQ(t, out.Len(), 20000001)
	expect.EQ(t, out.Bytes()[out.Len()-1], byte('\n'))
	expect.EQ(t, out.Bytes()[0], byte('a'))
}
