package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coachpo/tweetstream/config"
	"github.com/coachpo/tweetstream/internal/observability"
	"github.com/coachpo/tweetstream/stream"
)

type globalFlags struct {
	configPath   string
	token        string
	logLevel     string
	logJSON      bool
	metrics      bool
	raw          bool
	asyncWorkers int
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "tweetstream",
		Short: "Stream Twitter statuses as JSON lines",
		Long: `tweetstream holds long-lived connections to the Twitter streaming endpoints,
reconnecting with the documented backoff, and prints every message as one JSON
object per line on stdout. Diagnostics go to stderr.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", fmt.Sprintf("settings file (default: $TWEETSTREAM_CONFIG or %s)", config.DefaultPath))
	pf.StringVar(&g.token, "token", "", "application bearer token (default: $TWITTER_BEARER_TOKEN)")
	pf.StringVar(&g.logLevel, "log-level", "", "diagnostic level: trace, debug, info, warn, error")
	pf.BoolVar(&g.logJSON, "log-json", false, "write diagnostics as JSON")
	pf.BoolVar(&g.metrics, "metrics", false, "export OTLP metrics")
	pf.BoolVar(&g.raw, "raw", false, "print tweets as the original JSON object")
	pf.IntVar(&g.asyncWorkers, "async-workers", 0, "deliver messages on a worker pool of this size; 1 keeps stream order")

	root.AddCommand(
		newStreamCommand(g, stream.KindSample, "Stream a random sample of public statuses", bindSampleFlags),
		newStreamCommand(g, stream.KindFirehose, "Stream every public status", bindFirehoseFlags),
		newStreamCommand(g, stream.KindFilter, "Stream statuses matching keywords, users or locations", bindFilterFlags),
		newStreamCommand(g, stream.KindUser, "Stream the authenticated user's timeline events", bindUserFlags),
		newRunCommand(g),
	)
	return root
}

// settings loads the settings file and layers the command-line overrides on top.
func (g *globalFlags) settings(cmd *cobra.Command, extra ...config.Option) (config.Settings, error) {
	base, err := config.LoadOrDefault(cmd.Context(), g.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	opts := []config.Option{
		config.WithBearerToken(g.token),
		config.WithLogLevel(g.logLevel),
	}
	flags := cmd.Flags()
	if flags.Changed("log-json") {
		opts = append(opts, config.WithLogJSON(g.logJSON))
	}
	if flags.Changed("metrics") {
		opts = append(opts, config.WithMetrics(g.metrics))
	}
	cfg := config.Apply(base, append(opts, extra...)...)
	if err := cfg.Validate(cmd.Context()); err != nil {
		return config.Settings{}, err
	}
	return cfg, nil
}

func (g *globalFlags) execute(cmd *cobra.Command, settings config.Settings) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, settings, cmd.OutOrStdout(), cmd.ErrOrStderr(), runOptions{
		rawTweets:    g.raw,
		asyncWorkers: g.asyncWorkers,
	})
	if err != nil {
		return err
	}
	runErr := rt.run(ctx, settings.Streams)
	if err := rt.shutdown(); err != nil {
		rt.logger.Warn("shutdown incomplete", observability.F("error", err))
	}
	return runErr
}

func newRunCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stream listed in the settings file",
		Long: `run opens all streams under "streams:" in the settings file and keeps them
running until interrupted. The exit status is non-zero if any stream failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := g.settings(cmd)
			if err != nil {
				return err
			}
			return g.execute(cmd, settings)
		},
	}
}
