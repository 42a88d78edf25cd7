package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/ogloc/pkg/buildinfo"
	"github.com/matzehuels/ogloc/pkg/cache"
	"github.com/matzehuels/ogloc/pkg/dump"
	"github.com/matzehuels/ogloc/pkg/errors"
	"github.com/matzehuels/ogloc/pkg/integrations/crates"
	"github.com/matzehuels/ogloc/pkg/pipeline"
	"github.com/matzehuels/ogloc/pkg/render"
	"github.com/matzehuels/ogloc/pkg/resolve"
	"github.com/matzehuels/ogloc/pkg/template"
)

const (
	appName   = "ogloc"
	envPrefix = "OGLOC"

	defaultFailureTTL = 2 * time.Second
	avatarCacheSize   = 256
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	v      *viper.Viper
	stdin  io.Reader
}

// New creates a CLI that logs to w. Settings are read from flags, then
// OGLOC_* environment variables, then the --config file.
func New(w io.Writer, level log.Level) *CLI {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return &CLI{
		Logger: newLogger(w, level),
		v:      v,
		stdin:  os.Stdin,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   appName,
		Short: "ogloc renders Open Graph images for crates",
		Long: `ogloc renders 1200x630 Open Graph preview images for crates published on
crates.io, using metadata from a crates.io database dump with an optional
fallback to the crates.io API.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
				return err
			}
			if configFile != "" {
				c.v.SetConfigFile(configFile)
				if err := c.v.ReadInConfig(); err != nil {
					return errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", configFile)
				}
			}
			c.SetLogLevel(levelFor(c.v.GetBool("verbose")))
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "%s", cmd.CommandPath())
	})
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (toml, yaml or json)")

	root.AddCommand(c.oneShotCommand())
	root.AddCommand(c.bulkCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Settings
// =============================================================================

// settings are the pipeline options shared by every command.
type settings struct {
	Dump          string
	Remote        bool
	RemoteURL     string
	RemoteTimeout time.Duration
	CacheSize     int
	FailureTTL    time.Duration
	RenderWorkers int
	Avatars       bool
}

// addPipelineFlags registers the shared pipeline flags. remote is the
// default for --remote.
func addPipelineFlags(cmd *cobra.Command, remote bool) {
	fs := cmd.Flags()
	fs.StringP("dump", "d", "", "path to the crates.io db-dump archive (tar.gz)")
	fs.Bool("remote", remote, "fall back to the crates.io API for crates missing from the dump")
	fs.String("remote-url", crates.DefaultBaseURL, "crates.io API base URL")
	fs.Duration("remote-timeout", resolve.DefaultTimeout, "timeout for one remote lookup")
	fs.Int("cache-size", cache.DefaultSize, "number of rendered images kept in memory")
	fs.Duration("failure-ttl", defaultFailureTTL, "how long a failed render is reused before retrying (0 disables)")
	fs.Int("render-workers", runtime.NumCPU(), "number of images rendered in parallel")
	fs.Bool("avatars", false, "fetch owner avatars instead of drawing monograms")
}

// settings resolves the shared settings for cmd.
func (c *CLI) settings(cmd *cobra.Command) (settings, error) {
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return settings{}, err
	}
	s := settings{
		Dump:          c.v.GetString("dump"),
		Remote:        c.v.GetBool("remote"),
		RemoteURL:     c.v.GetString("remote-url"),
		RemoteTimeout: c.v.GetDuration("remote-timeout"),
		CacheSize:     c.v.GetInt("cache-size"),
		FailureTTL:    c.v.GetDuration("failure-ttl"),
		RenderWorkers: c.v.GetInt("render-workers"),
		Avatars:       c.v.GetBool("avatars"),
	}
	if s.Dump == "" {
		return s, errors.New(errors.ErrCodeInvalidInput, "no dump given: pass --dump or set %s_DUMP", envPrefix)
	}
	if s.CacheSize <= 0 {
		return s, errors.New(errors.ErrCodeInvalidInput, "--cache-size must be positive")
	}
	return s, nil
}

// =============================================================================
// Pipeline Factory
// =============================================================================

// loadDump loads the dump restricted to filter, with a spinner on stderr
// when show is set.
func (c *CLI) loadDump(ctx context.Context, s settings, filter dump.LoadFilter, show bool) (*dump.Store, error) {
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	var spin *Spinner
	if show {
		spin = newSpinner(ctx, os.Stderr, "Loading "+s.Dump)
		spin.Start()
	}
	store, err := dump.Load(ctx, s.Dump, dump.Options{Filter: filter, Logger: logger})
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return nil, err
	}

	st := store.Stats()
	prog.done("loaded dump",
		"crates", st.Packages,
		"versions", st.Versions,
		"owners", st.Owners,
		"skipped", st.Skipped())
	return store, nil
}

// newPipeline wires resolver, binder, renderer and cache over store.
func (c *CLI) newPipeline(ctx context.Context, s settings, store *dump.Store) (*pipeline.Pipeline, error) {
	logger := loggerFromContext(ctx)

	var remote resolve.RemoteSource
	if s.Remote {
		remote = crates.NewClient(s.RemoteURL)
	}
	resolver := resolve.New(store, resolve.Options{
		Remote:  remote,
		Timeout: s.RemoteTimeout,
		Logger:  logger,
	})

	var avatars render.AvatarLoader
	if s.Avatars {
		loader, err := render.NewHTTPAvatarLoader(avatarCacheSize)
		if err != nil {
			return nil, err
		}
		avatars = loader
	}
	renderer := render.New(render.Options{
		Workers: s.RenderWorkers,
		Avatars: avatars,
		Logger:  logger,
	})

	rc, err := cache.New(cache.Options{Size: s.CacheSize, FailureTTL: s.FailureTTL})
	if err != nil {
		return nil, err
	}
	return pipeline.New(resolver, template.New(), renderer, rc, logger), nil
}

// =============================================================================
// Version
// =============================================================================

func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, buildinfo.String())
		},
	}
}
