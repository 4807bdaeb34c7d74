package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and replace the scoring settings",
	Long:  "Show the active scoring configuration, print the recommended defaults, or store a new settings document.",
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode settings")
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
