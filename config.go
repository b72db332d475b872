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
	bind           string
	dbDriver       string
	dbDSN          string
	hostSecret     string
	port           int
	prefix         string
	profile        bool
	sendBuffer     int
	sessionTimeout time.Duration
	ticketTTL      time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.dbDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver (must be sqlite or postgres): %q", c.dbDriver)
	}
	if c.dbDSN == "" {
		return errors.New("--db-dsn must not be empty")
	}
	if c.sendBuffer < 1 {
		return fmt.Errorf("invalid send buffer (must be at least 1): %d", c.sendBuffer)
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
	v.SetEnvPrefix("QUIZBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "quizbox",
		Short:         "Host-driven live quiz sessions, with players answering from their phones.",
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: QUIZBOX_BIND)")
	fs.StringVar(&cfg.dbDriver, "db-driver", "sqlite", "database driver, sqlite or postgres (env: QUIZBOX_DB_DRIVER)")
	fs.StringVar(&cfg.dbDSN, "db-dsn", "quizbox.db", "database connection string (env: QUIZBOX_DB_DSN)")
	fs.StringVar(&cfg.hostSecret, "host-secret", "", "key used to sign host tickets, random if unset (env: QUIZBOX_HOST_SECRET)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: QUIZBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: QUIZBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: QUIZBOX_PROFILE)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", 16, "messages queued per connection before it is dropped (env: QUIZBOX_SEND_BUFFER)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game hubs are released (env: QUIZBOX_SESSION_TIMEOUT)")
	fs.DurationVar(&cfg.ticketTTL, "ticket-ttl", 12*time.Hour, "lifetime of host tickets, 0 to never expire (env: QUIZBOX_TICKET_TTL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: QUIZBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: QUIZBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: QUIZBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: QUIZBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
