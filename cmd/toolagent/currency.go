package main

import (
	"fmt"
	"strings"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/tools/calculator"
	"github.com/effective-security/toolagent/tools/currency"
	"github.com/spf13/cobra"
)

// CurrencyQueries are the example queries of the currency command
var CurrencyQueries = []string{
	"What is the exchange rate from USD to EUR?",
	"Convert 100 USD to EUR",
	"Convert 1000 USD to EUR, GBP, and JPY. Which gives the highest value?",
}

func newCurrencyCmd(a *app) *cobra.Command {
	var queries []string

	cmd := &cobra.Command{
		Use:   "currency",
		Short: "Convert currencies with live exchange rates",
		Long: `currency answers the example conversion queries, or the ones given with --query,
using the fetch_live_rate and calculate tools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			rate, err := currency.New()
			if err != nil {
				return err
			}
			calc, err := calculator.New()
			if err != nil {
				return err
			}
			r, err := a.newRunner(out, "currency", llms.ProviderOpenAI, agent.NewFunctionCalling(), rate, calc)
			if err != nil {
				return err
			}

			if len(queries) == 0 {
				queries = CurrencyQueries
			}

			sep := strings.Repeat("-", 70)
			for i, query := range queries {
				fmt.Fprintf(out, "\n[Example %d]\n%s\nQuery: %s\n", i+1, sep, query)
				answer, err := r.ask(cmd.Context(), query)
				if err != nil {
					fmt.Fprintf(out, "Error: %v\n", err)
					if cmd.Context().Err() != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "Result: %s\n", answer)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "query to run instead of the examples, can be repeated")
	return cmd
}
