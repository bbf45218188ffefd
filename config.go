package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind              string
	distractorCount   int
	distractorKey     string
	distractorModel   string
	distractorTimeout time.Duration
	distractorURL     string
	minPlayers        int
	port              int
	prefix            string
	profile           bool
	sessionTimeout    time.Duration
	storeRetries      int
	tlsCert           string
	tlsKey            string
	verbose           bool
	version           bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 2 {
		return fmt.Errorf("invalid minimum player count (must be at least 2): %d", c.minPlayers)
	}
	if c.distractorCount < 1 {
		return fmt.Errorf("invalid distractor count (must be at least 1): %d", c.distractorCount)
	}
	if c.storeRetries < 1 {
		return fmt.Errorf("invalid store retry count (must be at least 1): %d", c.storeRetries)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KNOWME")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "knowme",
		Short:         "A party game of guessing which of your friends' answers are real.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: KNOWME_BIND)")
	fs.IntVar(&cfg.distractorCount, "distractor-count", 3, "number of fake answers per question (env: KNOWME_DISTRACTOR_COUNT)")
	fs.StringVar(&cfg.distractorKey, "distractor-key", "", "api key for the fake-answer endpoint (env: KNOWME_DISTRACTOR_KEY)")
	fs.StringVar(&cfg.distractorModel, "distractor-model", "gpt-3.5-turbo", "model used to generate fake answers (env: KNOWME_DISTRACTOR_MODEL)")
	fs.DurationVar(&cfg.distractorTimeout, "distractor-timeout", 15*time.Second, "timeout for fake-answer generation (env: KNOWME_DISTRACTOR_TIMEOUT)")
	fs.StringVar(&cfg.distractorURL, "distractor-url", "https://api.openai.com/v1/chat/completions", "chat completions endpoint for fake answers (env: KNOWME_DISTRACTOR_URL)")
	fs.IntVar(&cfg.minPlayers, "min-players", 2, "minimum players required to start a game (env: KNOWME_MIN_PLAYERS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: KNOWME_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: KNOWME_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: KNOWME_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed (env: KNOWME_SESSION_TIMEOUT)")
	fs.IntVar(&cfg.storeRetries, "store-retries", 5, "room update attempts before giving up on contention (env: KNOWME_STORE_RETRIES)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: KNOWME_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: KNOWME_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: KNOWME_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: KNOWME_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("knowme v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
