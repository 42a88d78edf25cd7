package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/ogloc/pkg/crate"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/pipeline"
)

// oneShotOpts holds the flags of the one-shot command.
type oneShotOpts struct {
	name    string
	version string
	output  string
}

// oneShotCommand renders a single crate. Only that crate is indexed from
// the dump, which keeps the load fast and small.
func (c *CLI) oneShotCommand() *cobra.Command {
	var opts oneShotOpts

	cmd := &cobra.Command{
		Use:     "one-shot",
		Aliases: []string{"convert"},
		Short:   "Render the image for one crate into a file",
		Example: `  ogloc one-shot --dump db-dump.tar.gz --name serde
  ogloc one-shot -d db-dump.tar.gz -n serde --version 1.0.200 -o serde.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runOneShot(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "crate name (required)")
	cmd.Flags().StringVar(&opts.version, "version", "", "crate version (default: latest)")
	cmd.Flags().StringVarP(&opts.output, "out", "o", "", "output file (default: <name>.png)")
	_ = cmd.MarkFlagRequired("name")
	addPipelineFlags(cmd, false)

	return cmd
}

func (c *CLI) runOneShot(cmd *cobra.Command, opts oneShotOpts) error {
	ctx := cmd.Context()
	if err := crate.ValidateName(opts.name); err != nil {
		return err
	}
	sel, err := crate.ParseSelector(opts.version)
	if err != nil {
		return err
	}
	s, err := c.settings(cmd)
	if err != nil {
		return err
	}
	if opts.output == "" {
		opts.output = crate.FileName(opts.name)
	}

	store, err := c.loadDump(ctx, s, dump.Single(opts.name), false)
	if err != nil {
		return err
	}
	p, err := c.newPipeline(ctx, s, store)
	if err != nil {
		return err
	}
	res, err := p.Render(ctx, opts.name, sel)
	if err != nil {
		return err
	}
	if err := pipeline.WriteFile(opts.output, res.PNG); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write %s", opts.output)
	}

	out := cmd.OutOrStdout()
	printSuccess(out, "%s %s", StyleValue.Render(res.Record.Name), StyleDim.Render(res.Record.Version))
	printFile(out, opts.output)
	printResult(out, res)
	return nil
}
