package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/ogloc/internal/server"
	"github.com/matzehuels/ogloc/internal/telemetry"
	"github.com/matzehuels/ogloc/pkg/dump"
)

// serveCommand serves images over HTTP until interrupted.
func (c *CLI) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve images over HTTP",
		Long: `Serve Open Graph images on GET /og/{name} and GET /og/{name}/{version}.

The dump is loaded once at startup. Crates that are missing from it are looked
up on the crates.io API unless --remote=false is given.`,
		Example: `  ogloc serve --dump db-dump.tar.gz --addr 0.0.0.0:8080`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd)
		},
	}

	fs := cmd.Flags()
	fs.StringP("addr", "a", server.DefaultAddr, "listen address")
	fs.Bool("metrics", true, "expose Prometheus metrics on /metrics")
	fs.String("preload", "all", "crates to index: 'all' or a comma separated list")
	addPipelineFlags(cmd, true)

	return cmd
}

func (c *CLI) runServe(cmd *cobra.Command) error {
	ctx := cmd.Context()
	s, err := c.settings(cmd)
	if err != nil {
		return err
	}
	addr := c.v.GetString("addr")

	store, err := c.loadDump(ctx, s, preloadFilter(c.v.GetString("preload")), true)
	if err != nil {
		return err
	}
	p, err := c.newPipeline(ctx, s, store)
	if err != nil {
		return err
	}

	telemetry.Register()
	srv := server.New(server.Options{
		Renderer: p,
		Logger:   loggerFromContext(ctx),
		Metrics:  c.v.GetBool("metrics"),
	})
	printInfo(cmd.OutOrStdout(), "serving %s crates on %s", StyleNumber.Render(strconv.Itoa(store.Len())), StyleValue.Render("http://"+addr))
	return srv.ListenAndServe(ctx, addr)
}

// preloadFilter maps the --preload value to a load filter.
func preloadFilter(list string) dump.LoadFilter {
	list = strings.TrimSpace(list)
	if list == "" || list == "all" {
		return dump.All()
	}
	names, _ := nameList(list)
	if names == nil {
		for _, n := range strings.Split(list, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return dump.Select(names...)
}
