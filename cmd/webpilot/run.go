package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/engine"
	"github.com/rahul/webpilot/internal/notify"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var queryID string
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run one query and print its progress.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			eng, err := a.engine(cmd.Context(), engine.WithPublisher(console(out)))
			if err != nil {
				return err
			}
			defer eng.Close(cmd.Context())

			rec, err := eng.Execute(cmd.Context(), queryID, args[0])
			if rec != nil {
				printResult(out, rec)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&queryID, "id", "", "query id (default: a new UUID)")
	return cmd
}

func console(out io.Writer) notify.Publisher {
	color := false
	if f, ok := out.(*os.File); ok {
		color = observability.IsTerminal(f)
	}
	return notify.NewConsole(out, color)
}

// printResult prints the extracted data of rec, or its error.
func printResult(out io.Writer, rec *store.Record) {
	fmt.Fprintf(out, "\nquery %s: %s\n", rec.QueryID, rec.Status)
	if rec.Error != "" {
		fmt.Fprintf(out, "error: %s\n", rec.Error)
	}
	var result agent.Result
	if len(rec.Result) == 0 || json.Unmarshal(rec.Result, &result) != nil {
		return
	}
	for _, step := range result.Steps {
		for _, data := range step.Extracted {
			fmt.Fprintf(out, "  [%d] %s: %s\n", step.Index, step.Description, data)
		}
	}
}
