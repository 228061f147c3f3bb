package fragment

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cfdna/interval"
	pkgerrors "github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// LengthStats summarizes the fragment lengths shown in the histogram.
type LengthStats struct {
	// N is the number of fragments no longer than the limit.
	N      int
	Mean   float64
	StdDev float64
	Median float64
}

// Plot size, in inches.
const (
	plotWidth  = 10
	plotHeight = 8
)

// NPYPath returns the pathname that LengthDistribution writes the length
// array to: binPath, with ".npy" appended unless already present.
func NPYPath(binPath string) string {
	if strings.HasSuffix(binPath, ".npy") {
		return binPath
	}
	return binPath + ".npy"
}

// ReadLengths returns end-start for every entry of the BED file, in file order.
func ReadLengths(ctx context.Context, bedPath string) ([]int64, error) {
	var lengths []int64
	err := interval.ScanBEDFile(ctx, bedPath, func(e interval.Entry) error {
		lengths = append(lengths, int64(e.End-e.Start0))
		return nil
	})
	return lengths, err
}

func writeNPY(ctx context.Context, path string, lengths []int64) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return pkgerrors.Wrapf(npyio.Write(out.Writer(ctx), lengths), "write %s", path)
}

func writeHistogram(ctx context.Context, path string, values plotter.Values, bins int) (err error) {
	p := plot.New()
	p.Title.Text = "Fragment length distribution"
	p.X.Label.Text = "Fragment length"
	p.Y.Label.Text = "Count"
	h, err := plotter.NewHist(values, bins)
	if err != nil {
		return pkgerrors.Wrapf(err, "histogram for %s", path)
	}
	p.Add(h)
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format == "" {
		format = "png"
	}
	wt, err := p.WriterTo(plotWidth*vg.Inch, plotHeight*vg.Inch, format)
	if err != nil {
		return pkgerrors.Wrapf(err, "plot %s", path)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	_, err = wt.WriteTo(out.Writer(ctx))
	return pkgerrors.Wrapf(err, "write %s", path)
}

// LengthDistribution reads the fragments of bedPath, saves the lengths of all
// of them as a numpy array in NPYPath(binPath), and plots a histogram of the
// lengths <= maxLimit to plotPath. The image format is chosen by the
// extension of plotPath (png by default). The histogram has one bin per unit
// of the plotted length range.
func LengthDistribution(ctx context.Context, bedPath, plotPath, binPath string, maxLimit int) (LengthStats, error) {
	lengths, err := ReadLengths(ctx, bedPath)
	if err != nil {
		return LengthStats{}, err
	}
	npyPath := NPYPath(binPath)
	if err := writeNPY(ctx, npyPath, lengths); err != nil {
		return LengthStats{}, err
	}

	var values plotter.Values
	for _, l := range lengths {
		if l <= int64(maxLimit) {
			values = append(values, float64(l))
		}
	}
	if len(values) == 0 {
		return LengthStats{}, errors.E(errors.Invalid, fmt.Sprintf("%s: no fragment of length <= %d", bedPath, maxLimit))
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	bins := int(sorted[len(sorted)-1] - sorted[0])
	if bins < 1 {
		bins = 1
	}
	if err := writeHistogram(ctx, plotPath, values, bins); err != nil {
		return LengthStats{}, err
	}
	stats := LengthStats{N: len(sorted)}
	stats.Mean, stats.StdDev = stat.MeanStdDev(sorted, nil)
	stats.Median = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	log.Printf("%s: %d fragments, %d of length <= %d (mean %.1f, median %.0f), saved to %s and %s",
		bedPath, len(lengths), stats.N, maxLimit, stats.Mean, stats.Median, npyPath, plotPath)
	return stats, nil
}
