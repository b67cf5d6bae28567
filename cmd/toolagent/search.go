package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools/tavily"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Answer questions with web search, type 'exit' to quit",
		Long: `search reads questions from stdin and answers them with the web_search tool.
The Tavily API key is read from the TAVILY_API_KEY environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			search, err := tavily.New()
			if err != nil {
				return err
			}
			r, err := a.newRunner(out, "search", llms.ProviderOllama, agent.NewReAct(), search)
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "search agent (type 'exit' to quit)")
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "\nquestion (or 'exit'): ")
				if !scanner.Scan() {
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if strings.EqualFold(question, "exit") {
					fmt.Fprintln(out, "Goodbye!")
					break
				}
				if question == "" {
					continue
				}

				answer, err := r.ask(cmd.Context(), question)
				if err != nil {
					fmt.Fprintf(out, "\nError: %v\n", err)
					if cmd.Context().Err() != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "\nAnswer: %s\n", answer)
			}
			return scanner.Err()
		},
	}
}
