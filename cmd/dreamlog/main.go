// Command dreamlog records dreams from the terminal. It sends submissions to
// the dreamlog server and keeps the results either in a local file (guest
// sessions) or in the signed-in account.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dreamlog-backend/internal/apiclient"
	"dreamlog-backend/internal/logger"
	"dreamlog-backend/internal/persistence"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	client  *apiclient.Client
	router  *persistence.Router
	session persistence.Session
	logger  *zap.Logger
}

type rootFlags struct {
	server   string
	token    string
	guest    bool
	store    string
	timeout  time.Duration
	logLevel string
	json     bool
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dreams.json"
	}
	return filepath.Join(home, ".dreamlog", "dreams.json")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	a := &app{}

	root := &cobra.Command{
		Use:           "dreamlog",
		Short:         "Record dreams and turn them into stories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logger.Config{Level: flags.logLevel, Encoding: "console", OutputPath: "stderr"})
			if err != nil {
				return err
			}
			a.logger = log
			a.client = apiclient.NewClient(flags.server, flags.timeout)
			a.router = persistence.NewRouter(
				persistence.NewLocalStore(flags.store),
				persistence.RemoteFactoryFor(a.client),
				log,
			)
			a.session = persistence.Session{Token: flags.token, Guest: flags.guest}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.server, "server", envOr("DREAMLOG_SERVER", "http://localhost:3001"), "dreamlog server URL")
	pf.StringVar(&flags.token, "token", os.Getenv("DREAMLOG_TOKEN"), "account access token; dreams are stored locally without one")
	pf.BoolVar(&flags.guest, "guest", false, "act as a guest even when a token is set")
	pf.StringVar(&flags.store, "store", envOr("DREAMLOG_STORE", defaultStorePath()), "local dream file for guest sessions")
	pf.DurationVar(&flags.timeout, "timeout", 5*time.Minute, "request timeout")
	pf.StringVar(&flags.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVar(&flags.json, "json", false, "print JSON instead of text")

	root.AddCommand(
		newGenerateCmd(a, flags),
		newSaveCmd(a, flags),
		newListCmd(a, flags),
		newUpdateCmd(a, flags),
		newShowCmd(a, flags),
		newHealthCmd(a, flags),
		newDeleteCmd(a),
		newSpeakCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
