package interval

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region string
		want   Entry
	}{
		{"chr1", Entry{"chr1", 0, posTypeMax - 1}},
		{"chr1:100", Entry{"chr1", 99, 100}},
		{"chr1:101-300", Entry{"chr1", 100, 300}},
		{"chr2:1,001-2,000", Entry{"chr2", 1000, 2000}},
		{"HLA-A*01:01:01:01:1-10", Entry{"HLA-A*01:01:01:01", 0, 10}},
	}
	for _, test := range tests {
		got, err := ParseRegionString(test.region)
		expect.NoError(t, err, test.region)
		expect.EQ(t, got, test.want, test.region)
	}
	for _, bad := range []string{"", ":1-2", "chr1:0-10", "chr1:20-10", "chr1:x-10"} {
		_, err := ParseRegionString(bad)
		expect.True(t, err != nil, bad)
	}
}

func TestEntryCompare(t *testing.T) {
	a := Entry{"chr1", 100, 200}
	expect.EQ(t, a.Compare(a), 0)
	expect.EQ(t, a.Compare(Entry{"chr10", 0, 1}), -1)
	expect.EQ(t, a.Compare(Entry{"chr1", 99, 300}), 1)
	expect.EQ(t, a.Compare(Entry{"chr1", 100, 201}), -1)
	expect.EQ(t, Entry{"chr2", 0, 1}.Compare(Entry{"chr10", 0, 1}), 1)
	expect.EQ(t, a.String(), "chr1\t100\t200")
	expect.EQ(t, a.Len(), 100)
}
