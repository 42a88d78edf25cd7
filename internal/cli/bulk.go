package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/pipeline"
)

// bulkOpts holds the flags of the bulk command.
type bulkOpts struct {
	input  string
	outDir string
	force  bool
	rate   float64
	jobs   int
}

// bulkCommand renders the latest image of many crates into a directory.
func (c *CLI) bulkCommand() *cobra.Command {
	var opts bulkOpts

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Render images for many crates into a directory",
		Long: `Render the latest image for every crate named by --in into --out/<name>.png.

--in is '-' for names on stdin, a comma separated list of crate names, or a
path to a file with one name per line (blank lines and # comments ignored).
Existing files are skipped unless --force is given. The command exits non-zero
when any crate failed; skipped crates are not failures.`,
		Example: `  ogloc bulk -d db-dump.tar.gz -i serde,tokio,rand -o images/
  cat names.txt | ogloc bulk -d db-dump.tar.gz -i - -o images/ --rate 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBulk(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "in", "i", "", "input: '-', comma separated names, or a file (required)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing files")
	cmd.Flags().Float64VarP(&opts.rate, "rate", "r", 0, "images rendered per second (0 = unlimited)")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", pipeline.DefaultJobs, "images processed concurrently")
	_ = cmd.MarkFlagRequired("in")
	addPipelineFlags(cmd, false)

	return cmd
}

func (c *CLI) runBulk(cmd *cobra.Command, opts bulkOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	names, err := readNames(opts.input, c.stdin)
	if err != nil {
		return err
	}
	names = dedupe(names)
	if len(names) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "input %q names no crates", opts.input)
	}
	s, err := c.settings(cmd)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "create output directory %s", opts.outDir)
	}

	var valid []string
	for _, n := range names {
		if crate.ValidateName(n) == nil {
			valid = append(valid, n)
		}
	}
	store, err := c.loadDump(ctx, s, dump.Select(valid...), false)
	if err != nil {
		return err
	}
	p, err := c.newPipeline(ctx, s, store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	batch := &pipeline.Batch{
		Pipeline: p,
		OutDir:   opts.outDir,
		Force:    opts.force,
		Jobs:     opts.jobs,
		Rate:     opts.rate,
		Logger:   logger,
		OnItem: func(it pipeline.Item) {
			mu.Lock()
			defer mu.Unlock()
			printItem(out, it)
		},
	}
	report := batch.Run(ctx, names)
	printReport(out, report)
	logger.Debug("render cache", "stats", p.Stats())

	if err := ctx.Err(); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d of %d crates failed", report.Count(pipeline.Failed), len(report.Items))
	}
	return nil
}
