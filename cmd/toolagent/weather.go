package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools/weather"
	"github.com/spf13/cobra"
)

// WeatherQueries are the example queries of the weather command,
// the first one is used when no query is entered.
var WeatherQueries = []string{
	"What's the weather like in Paris?",
	"Tell me about the weather in Tokyo and its humidity",
	"Is it hot in New York today?",
	"Compare the temperature in London and Berlin",
}

func newWeatherCmd(a *app) *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Simple weather assistant",
		Long: `weather lists the example queries and reads one query from stdin,
an empty query runs the first example. The weather data is synthetic.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			list, err := weather.NewProvider(seed).Tools()
			if err != nil {
				return err
			}
			r, err := a.newRunner(out, "weather", llms.ProviderOllama, agent.NewFunctionCalling(), list...)
			if err != nil {
				return err
			}

			sep := strings.Repeat("=", 70)
			fmt.Fprintf(out, "%s\nExample Queries:\n%s\n", sep, sep)
			for i, query := range WeatherQueries {
				fmt.Fprintf(out, "%d. %s\n", i+1, query)
			}
			fmt.Fprint(out, "\nEnter your weather query: ")

			var query string
			scanner := bufio.NewScanner(cmd.InOrStdin())
			if scanner.Scan() {
				query = strings.TrimSpace(scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			if query == "" {
				query = WeatherQueries[0]
				fmt.Fprintf(out, "\n[Using default query]: %s\n", query)
			}
			fmt.Fprintf(out, "\nQuery: %s\n", query)

			answer, err := r.ask(cmd.Context(), query)
			if err != nil {
				fmt.Fprintf(out, "\nError: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "\n%s\nAGENT RESPONSE:\n%s\n%s\n", sep, sep, answer)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed of the synthetic weather data, 0 for random")
	return cmd
}
