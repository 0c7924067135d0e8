package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentcanvas/runner"
	"github.com/fatih/color"
)

// CLI configuration
type Config struct {
	GraphFile      string
	Inputs         map[string]interface{}
	EngineURL      string
	AuthToken      string
	TranscriptsDir string
	SnapshotsDir   string
	PollInterval   time.Duration
	Timeout        time.Duration
	Verbose        bool
	JSON           bool
	ShowInputs     bool
}

func main() {
	config := parseFlags()

	// Validate required arguments
	if config.GraphFile == "" {
		color.Red("Error: graph file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.GraphFile); os.IsNotExist(err) {
		color.Red("Error: graph file '%s' not found", config.GraphFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	// Load graph from YAML file
	color.Blue("Loading graph from: %s", config.GraphFile)
	graph, err := runner.LoadFile(config.GraphFile)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}

	color.Cyan("Graph: %s", graph.Name())
	if graph.Description() != "" {
		color.White("Description: %s", graph.Description())
	}

	// Show form inputs if requested and exit
	if config.ShowInputs {
		showGraphInputs(graph)
		return
	}

	if config.EngineURL == "" {
		color.Red("Error: execution engine URL is required (-engine)")
		os.Exit(1)
	}
	gateway, err := runner.NewHTTPGateway(runner.HTTPGatewayOptions{
		BaseURL:   config.EngineURL,
		AuthToken: config.AuthToken,
	})
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Set up transcript logging
	var transcriptLog runner.TranscriptLog
	if config.TranscriptsDir != "" {
		transcriptLog = runner.NewFileTranscriptLog(config.TranscriptsDir)
		color.Blue("Transcripts: %s", config.TranscriptsDir)
	} else {
		transcriptLog = runner.NewNullTranscriptLog()
	}

	// Set up graph snapshotting
	var snapshotter runner.Snapshotter
	if config.SnapshotsDir != "" {
		snapshotter, err = runner.NewFileSnapshotter(config.SnapshotsDir)
		if err != nil {
			log.Fatalf("Failed to create snapshotter: %v", err)
		}
		color.Blue("Snapshots: %s", config.SnapshotsDir)
	} else {
		snapshotter = runner.NewNullSnapshotter()
	}

	projector, err := runner.NewTranscriptProjector(runner.TranscriptProjectorOptions{
		Sink:   &terminalSink{},
		Log:    transcriptLog,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to create transcript projector: %v", err)
	}

	r, err := runner.NewRunner(runner.RunnerOptions{
		Graph:        graph,
		Gateway:      gateway,
		Snapshotter:  snapshotter,
		Callbacks:    projector,
		Logger:       logger,
		PollInterval: config.PollInterval,
	})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	// Run with optional timeout; Ctrl-C requests a cooperative stop
	ctx := context.Background()
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		color.Yellow("\nStop requested, waiting for the current poll to finish...")
		r.Stop()
	}()

	err = r.Run(ctx, config.Inputs)
	showRunResults(r, err, config)
}

func parseFlags() *Config {
	config := &Config{
		Inputs: make(map[string]interface{}),
	}

	flag.StringVar(&config.GraphFile, "file", "", "Path to the YAML graph definition file (required)")
	flag.StringVar(&config.GraphFile, "f", "", "Path to the YAML graph definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Form input in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Form input in format key=value (shorthand, can be used multiple times)")

	flag.StringVar(&config.EngineURL, "engine", "", "Execution engine base URL (required to run)")
	flag.StringVar(&config.AuthToken, "token", "", "Bearer token for the execution engine (optional)")

	flag.StringVar(&config.TranscriptsDir, "transcripts", "", "Directory to store run transcripts (optional)")
	flag.StringVar(&config.SnapshotsDir, "snapshots", "", "Directory to store graph snapshots (optional)")

	flag.DurationVar(&config.PollInterval, "interval", 0, "Poll interval (e.g., 500ms, 2s; default 1s)")
	flag.DurationVar(&config.Timeout, "timeout", 0, "Run timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Run timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")
	flag.BoolVar(&config.JSON, "json", false, "Output the run summary in JSON format")
	flag.BoolVar(&config.ShowInputs, "show-inputs", false, "Show the graph's form inputs and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Runner CLI - Submit a graph to a remote execution engine and poll results

Usage: %s [options] -file <graph.yaml> -engine <url>

Examples:
  # Run a graph against a local engine
  %s -file graph.yaml -engine http://localhost:8080/api/v1

  # Run with form inputs and a transcript directory
  %s -file graph.yaml -engine http://localhost:8080/api/v1 -input topic=go -transcripts ./transcripts

  # Inspect the graph's form without running it
  %s -file graph.yaml -show-inputs

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Input Format:
  Use -input key=value for each form input.
  Values are parsed as JSON if possible, otherwise as strings.

Press Ctrl-C during a run to stop it and keep the partial results.

`)
	}

	flag.Parse()

	for _, input := range inputFlags {
		parts := strings.SplitN(input, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]

		// Try to parse as JSON, fallback to string
		var parsedValue interface{}
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Inputs[key] = parsedValue
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// terminalSink renders transcript messages to the console, colored by kind.
type terminalSink struct{}

func (s *terminalSink) Post(ctx context.Context, message *runner.ChatMessage) error {
	switch message.Kind {
	case runner.MessageKindProgress:
		color.Blue("%s", message.Body)
	case runner.MessageKindNode:
		color.Cyan("[%s]", message.Title)
		if message.Body != "" {
			fmt.Println(indent(message.Body))
		}
	case runner.MessageKindNotice:
		color.Yellow("%s", message.Body)
	case runner.MessageKindSummary:
		color.Green("%s", message.Body)
	default:
		fmt.Println(message.Body)
	}
	return nil
}

func (s *terminalSink) Replace(ctx context.Context, messageID string, message *runner.ChatMessage) error {
	// The console has no in-place edits; print the summary as a new line
	return s.Post(ctx, message)
}

func indent(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}

func showGraphInputs(graph *runner.Graph) {
	entry := graph.EntryNode()
	if entry == nil || len(entry.Fields) == 0 {
		color.Blue("No form inputs declared")
		return
	}

	color.Blue("Form inputs:")
	for _, field := range entry.Fields {
		required := ""
		defaultValue := ""
		if field.Default != nil {
			if defaultBytes, err := json.Marshal(field.Default); err == nil {
				defaultValue = fmt.Sprintf(" [default: %s]", string(defaultBytes))
			}
		} else if field.Required {
			required = " (required)"
		}

		fmt.Printf("  %s (%s)%s%s\n", field.Name, field.Type, required, defaultValue)
		if field.Description != "" {
			fmt.Printf("    %s\n", field.Description)
		}
	}
}

func showRunResults(r *runner.Runner, err error, config *Config) {
	summary := r.Summary()

	if config.JSON {
		data, marshalErr := json.MarshalIndent(summary, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to marshal summary: %v", marshalErr)
		}
		fmt.Println(string(data))
		if err != nil {
			os.Exit(1)
		}
		return
	}

	fmt.Println()
	switch runner.RunStatus(summary.Status) {
	case runner.RunStatusCompleted:
		if summary.ErrorCount > 0 {
			color.Yellow("Run %s completed in %v with %d node error(s)", summary.RunID, summary.Duration.Round(time.Millisecond), summary.ErrorCount)
		} else {
			color.Green("Run %s completed in %v", summary.RunID, summary.Duration.Round(time.Millisecond))
		}
	case runner.RunStatusStopped:
		color.Yellow("Run %s stopped after %v with %d node(s) reported", summary.RunID, summary.Duration.Round(time.Millisecond), summary.NodeCount)
	default:
		color.Red("Run failed: %v", err)
	}
	color.White("Polls: %d, nodes: %d", summary.PollCount, summary.NodeCount)

	if err != nil {
		os.Exit(1)
	}
}
