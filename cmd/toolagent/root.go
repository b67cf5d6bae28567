package main

import (
	"os"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/encoding"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "cmd")

// app holds the persistent flags shared by the commands
type app struct {
	configFile  string
	provider    string
	model       string
	baseURL     string
	temperature float64
	maxSteps    int
	llmTimeout  time.Duration
	toolTimeout time.Duration
	protocol    string
	verbose     bool
	transcript  string

	transcriptFormat string
}

func newRootCmd() *cobra.Command {
	a := new(app)

	rootCmd := &cobra.Command{
		Use:   "toolagent",
		Short: "Run queries through a tool-augmented LLM agent",
		Long: `toolagent wires an LLM backend to a set of tools and answers questions
by alternating model turns with tool calls until the model gives a final answer.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
			if a.verbose {
				xlog.SetGlobalLogLevel(xlog.INFO)
			} else {
				xlog.SetGlobalLogLevel(xlog.ERROR)
			}
		},
	}

	f := rootCmd.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "LLM providers configuration file")
	f.StringVar(&a.provider, "provider", "", "LLM provider: OPENAI, OLLAMA, LITELLM, ANTHROPIC, BEDROCK or GOOGLEAI")
	f.StringVar(&a.model, "model", "", "model name")
	f.StringVar(&a.baseURL, "base-url", "", "base URL of the LLM API")
	f.Float64Var(&a.temperature, "temperature", 0, "sampling temperature")
	f.IntVar(&a.maxSteps, "max-steps", agent.DefaultMaxSteps, "maximum number of model turns per query")
	f.DurationVar(&a.llmTimeout, "llm-timeout", agent.DefaultLLMTimeout, "timeout of a single LLM call")
	f.DurationVar(&a.toolTimeout, "tool-timeout", agent.DefaultToolTimeout, "timeout of a single tool call")
	f.StringVar(&a.protocol, "protocol", "", "reasoning protocol: react or function_calling")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "print the agent events")
	f.StringVar(&a.transcript, "transcript", "", "dump the transcript of the last query to the file, - for stdout")
	f.StringVar(&a.transcriptFormat, "transcript-format", encoding.FormatDefault, "format of the transcript dump: json, yaml or toml")

	rootCmd.AddCommand(
		newSearchCmd(a),
		newCurrencyCmd(a),
		newWeatherCmd(a),
	)
	return rootCmd
}
