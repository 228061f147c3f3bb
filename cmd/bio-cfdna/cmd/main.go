// Package cmd implements the bio-cfdna subcommands.
package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/cfdna/fragment"
	"github.com/grailbio/cfdna/methyl"
	"github.com/grailbio/cfdna/util"
	"v.io/x/lib/cmdline"
)

func newCmdBAMToBED() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "bam2bed",
		Short:    "Convert the read pairs of an indexed BAM file into sorted fragment intervals",
		ArgsName: "bampath bedpath",
		Long: `
Each properly paired, unclipped, non-duplicate primary read pair becomes one
line "chrom<TAB>start<TAB>end" of the output BED file, spanning from the start
of the forward mate to the end of the reverse mate. The output is sorted by
chromosome, start and end.`,
	}
	opts := fragment.Opts{}
	cmd.Flags.BoolVar(&opts.Compress, "compress", false, "Also write a bgzip copy of the BED file, bedpath.gz, and its tabix index")
	cmd.Flags.BoolVar(&opts.Force, "force", false, "Overwrite an existing bedpath.gz")
	cmd.Flags.StringVar(&opts.Region, "region", "", "Only read the reads in this region, e.g., chr1:10001-20000")
	cmd.Flags.StringVar(&opts.Index, "index", "", "Input BAM index filename. By default set to input bampath + .bai")
	cmd.Flags.StringVar(&opts.TmpDir, "tmp-dir", "", "Directory for temporary files during sorting. If empty, the system default is used")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("bam2bed takes bampath bedpath, but got %v", argv)
		}
		return fragment.BAMToBED(vcontext.Background(), argv[0], argv[1], opts)
	})
	return cmd
}

func newCmdFragLen() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "fraglen",
		Short:    "Plot the fragment length distribution of a fragment BED file",
		ArgsName: "bedpath plotpath binpath",
		Long: `
All the fragment lengths are saved as a numpy int64 array in binpath (".npy" is
appended if missing). The lengths up to -max are plotted as a histogram in
plotpath; the image format is chosen by its extension.`,
	}
	maxFlag := cmd.Flags.Int("max", 500, "Longest fragment length to plot")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("fraglen takes bedpath plotpath binpath, but got %v", argv)
		}
		stats, err := fragment.LengthDistribution(vcontext.Background(), argv[0], argv[1], argv[2], *maxFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "n\t%d\nmean\t%s\nstddev\t%s\nmedian\t%s\n", stats.N,
			strconv.FormatFloat(stats.Mean, 'f', 2, 64),
			strconv.FormatFloat(stats.StdDev, 'f', 2, 64),
			strconv.FormatFloat(stats.Median, 'f', 0, 64))
		return nil
	})
	return cmd
}

func newCmdMethyl() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "methyl",
		Short:    "Compute methylation levels of regions from XM-tagged reads",
		ArgsName: "bampath bedpath txtpath",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("methyl takes bampath bedpath txtpath, but got %v", argv)
		}
		return methyl.Calculate(vcontext.Background(), argv[0], argv[1], argv[2])
	})
	return cmd
}

func newCmdGunzip() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "gunzip",
		Short:    "Decompress gzip files next to the originals",
		ArgsName: "path...",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("gunzip takes at least one path")
		}
		for _, path := range argv {
			outPath, err := util.Gunzip(vcontext.Background(), path)
			if err != nil {
				return err
			}
			log.Printf("%s: decompressed to %s", path, outPath)
		}
		return nil
	})
	return cmd
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Run a shell command line, streaming its output",
		ArgsName: "cmdline...",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("run takes a command line")
		}
		return util.RunCommandTo(env.Stdout, strings.Join(argv, " "))
	})
	return cmd
}

// New returns the root bio-cfdna command.
func New() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-cfdna",
		Short:    "Helpers for cell-free DNA sequencing analysis",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdBAMToBED(),
			newCmdFragLen(),
			newCmdMethyl(),
			newCmdGunzip(),
			newCmdRun(),
		},
	}
}

// Run parses the command line and runs the selected subcommand.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(New())
}
