package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/voicegate/internal/config"
	"github.com/teslashibe/voicegate/internal/log"
	"github.com/teslashibe/voicegate/pkg/agent"
)

type rootOptions struct {
	configPath string
	logLevel   string
	noMic      bool
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "voicegate",
		Short:         "Voice agent gateway with provider fallback chains",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file (environment variables override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and the microphone loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	serve.Flags().BoolVar(&opts.noMic, "no-mic", false, "Disable the background microphone loop")
	root.Flags().AddFlagSet(serve.Flags())

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and print the effective provider chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.OutOrStdout(), opts)
		},
	}
	check.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the report as JSON")

	root.AddCommand(serve, check)
	return root
}

func loadConfig(opts *rootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.noMic {
		cfg.Mic.Enabled = false
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log.Init(cfg.LogLevel)

	app, err := agent.New(cfg, agent.WithLogger(log.L()))
	if err != nil {
		return err
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	}()

	printBanner(cmd.OutOrStdout(), &cfg)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	err = app.Run(ctx)
	if errors.Is(err, agent.ErrTerminated) {
		log.Info("stopped by voice command")
		return nil
	}
	return err
}

func printBanner(w io.Writer, cfg *config.Config) {
	r := cfg.Check()
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintf(w, "  %s\n", bold("voicegate"))
	fmt.Fprintf(w, "  webhook:  %s\n", color.CyanString("http://%s/api/incoming-webhook", cfg.Server.Addr()))
	fmt.Fprintf(w, "  health:   %s\n", color.CyanString("http://%s/health", cfg.Server.Addr()))
	fmt.Fprintf(w, "  llm:      %s\n", r.LLM)
	fmt.Fprintf(w, "  stt:      %s\n", joinOrNone(r.STT))
	fmt.Fprintf(w, "  tts:      %s\n", joinOrNone(r.TTS))
	if r.OutgoingWebhook {
		fmt.Fprintf(w, "  outgoing: %s\n", cfg.Webhook.URL)
	}
	if !r.MicLoop {
		fmt.Fprintf(w, "  %s\n", color.YellowString("microphone loop disabled"))
	}
	fmt.Fprintln(w, strings.Repeat("=", 50))
}

func runCheck(w io.Writer, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	r := cfg.Check()

	if opts.jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return err
		}
	} else {
		renderReport(w, r)
	}
	if !r.Consistent {
		return cfg.Validate()
	}
	return nil
}

func renderReport(w io.Writer, r config.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "STEP\tPROVIDERS")
	fmt.Fprintf(tw, "stt\t%s\n", joinOrNone(r.STT))
	fmt.Fprintf(tw, "llm\t%s\n", r.LLM)
	fmt.Fprintf(tw, "tts\t%s\n", joinOrNone(r.TTS))
	fmt.Fprintf(tw, "outgoing webhook\t%s\n", onOff(r.OutgoingWebhook))
	fmt.Fprintf(tw, "mic loop\t%s\n", onOff(r.MicLoop))
	tw.Flush()

	for _, w2 := range r.Warnings {
		fmt.Fprintf(w, "%s %s\n", color.YellowString("warning:"), w2)
	}
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "%s %s\n", color.RedString("issue:"), issue)
	}
	if r.Consistent {
		fmt.Fprintln(w, color.GreenString("configuration OK"))
	}
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, " -> ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
