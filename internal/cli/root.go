// Package cli implements the smechat command.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/smeclient"
	"github.com/casedesk/smechat/internal/widget"
	"github.com/casedesk/smechat/pkg/logger"
)

// app carries what every subcommand needs once the root has run.
type app struct {
	cfg      *config.Config
	client   *smeclient.Client
	identity string
	logFile  io.Closer

	// widgetOpts are appended to every widget the commands create.
	widgetOpts []widget.Option

	apiURL     string
	configPath string
	logLevel   string
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "smechat",
		Short: "Ask the SME assistant from the terminal",
		Long: `smechat is a terminal client for the SME assistant.

Ask questions, rate answers, and refer anything the assistant cannot
confirm to a subject-matter expert.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
	}

	root.PersistentFlags().StringVar(&a.apiURL, "api", "", "Backend URL (overrides client.api_url)")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(newChatCmd(a))
	root.AddCommand(newAskCmd(a))
	root.AddCommand(newHealthCmd(a))
	root.AddCommand(newReferralsCmd(a))
	return root
}

// Execute runs the smechat command.
func Execute() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	// The terminal belongs to the chat; logs only go to a file when one is set.
	var out io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = f
		out = f
	}
	logger.InitWithWriter(level, out)

	baseURL := cfg.Client.APIURL
	if a.apiURL != "" {
		baseURL = a.apiURL
	}

	a.identity = cfg.Client.IdentityFile
	if a.identity == "" {
		a.identity = defaultIdentityPath()
	}
	opts := []smeclient.Option{smeclient.WithClientKey(loadIdentity(a.identity))}
	if cfg.Client.TimeoutSeconds > 0 {
		opts = append(opts, smeclient.WithTimeout(time.Duration(cfg.Client.TimeoutSeconds)*time.Second))
	}

	a.client, err = smeclient.New(baseURL, opts...)
	if err != nil {
		return err
	}
	logger.Debug().Str("api", a.client.BaseURL()).Msg("client ready")
	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) {
	if a.client != nil {
		if err := saveIdentity(a.identity, a.client.ClientKey()); err != nil {
			logger.Warn().Err(err).Str("path", a.identity).Msg("failed to save client identity")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func (a *app) newWidget(extra ...widget.Option) *widget.Widget {
	opts := append([]widget.Option{}, a.widgetOpts...)
	opts = append(opts, extra...)
	return widget.New(a.client, opts...)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
