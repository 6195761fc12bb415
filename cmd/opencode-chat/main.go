// Command opencode-chat is a minimal interactive REPL over the SDK:
// each stdin line becomes one turn, streamed to stdout as it arrives.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	opencode "github.com/agentwire/opencode-go"
	"github.com/agentwire/opencode-go/agentmsg"
)

var (
	configPath string
	serverURL  string
	modelID    string
	providerID string
	cwd        string
	resumeID   string
	denyList   []string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "opencode-chat",
	Short: "Interactive chat with a coding agent",
	Long: `opencode-chat drives a coding agent from the terminal.

By default it spawns the agent as a local subprocess. With --server it
talks to a running agent server instead.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&serverURL, "server", "", "agent server URL (enables the HTTP backend)")
	flags.StringVar(&modelID, "model", "", "model id for HTTP-backed sessions")
	flags.StringVar(&providerID, "provider", "", "model provider for HTTP-backed sessions")
	flags.StringVar(&cwd, "cwd", ".", "working directory for the agent")
	flags.StringVar(&resumeID, "resume", "", "resume an existing session by id")
	flags.StringSliceVar(&denyList, "deny", nil, "substrings that block shell commands")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// fileConfig mirrors the flags for --config files. Flags win when both
// are set.
type fileConfig struct {
	Server   string   `yaml:"server"`
	Model    string   `yaml:"model"`
	Provider string   `yaml:"provider"`
	CWD      string   `yaml:"cwd"`
	Resume   string   `yaml:"resume"`
	Deny     []string `yaml:"deny"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func buildOptions(cmd *cobra.Command) ([]opencode.Option, error) {
	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if !cmd.Flags().Changed("server") {
			serverURL = cfg.Server
		}
		if !cmd.Flags().Changed("model") {
			modelID = cfg.Model
		}
		if !cmd.Flags().Changed("provider") {
			providerID = cfg.Provider
		}
		if !cmd.Flags().Changed("cwd") && cfg.CWD != "" {
			cwd = cfg.CWD
		}
		if !cmd.Flags().Changed("resume") {
			resumeID = cfg.Resume
		}
		if !cmd.Flags().Changed("deny") {
			denyList = cfg.Deny
		}
	}

	opts := []opencode.Option{opencode.WithCWD(cwd)}
	if serverURL != "" {
		opts = append(opts, opencode.WithServerURL(serverURL))
	}
	if modelID != "" {
		opts = append(opts, opencode.WithModel(modelID))
	}
	if providerID != "" {
		opts = append(opts, opencode.WithProviderID(providerID))
	}
	if resumeID != "" {
		opts = append(opts, opencode.WithResume(resumeID))
	}
	if len(denyList) > 0 {
		opts = append(opts, opencode.WithGuards(opencode.GuardMatcher{
			Tool:   "bash",
			Guards: []opencode.GuardFunc{opencode.DenySubstrings("command", denyList...)},
		}))
	}
	return opts, nil
}

func run(cmd *cobra.Command, args []string) error {
	slog.SetDefault(newLogger())

	opts, err := buildOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := opencode.NewClient(opts...)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect()

	fmt.Printf("session %s ready, ^D to quit\n", client.SessionID())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		prompt := scanner.Text()
		if prompt == "" {
			continue
		}
		if err := runTurn(ctx, client, prompt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runTurn(ctx context.Context, client *opencode.Client, prompt string) error {
	if err := client.Query(ctx, prompt); err != nil {
		return err
	}
	stream, err := client.ReceiveResponse(ctx)
	if err != nil {
		return err
	}

	for msg := range stream.Messages() {
		printMessage(msg)
	}
	fmt.Println()
	return stream.Err()
}

func printMessage(msg agentmsg.Message) {
	switch m := msg.(type) {
	case agentmsg.AssistantMessage:
		for _, block := range m.Content {
			switch b := block.(type) {
			case agentmsg.TextBlock:
				fmt.Print(b.Text)
			case agentmsg.ToolUseBlock:
				fmt.Printf("\n[tool %s]\n", b.Name)
			}
		}
	case agentmsg.SystemMessage:
		if m.Subtype == agentmsg.SubtypeThought {
			slog.Debug("agent thought", "text", m.Data["text"])
		}
	case agentmsg.ResultMessage:
		if m.IsError {
			fmt.Printf("\n[error: %s]", m.Error)
			return
		}
		fmt.Printf("\n[done in %dms, $%.4f]", m.DurationMs, m.TotalCostUSD)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
