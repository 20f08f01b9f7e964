package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (a *app) newGraphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline graph as Mermaid or Graphviz DOT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.engineConfig()
			if err != nil {
				return err
			}
			_, g, err := a.pipeline(cfg)
			if err != nil {
				return err
			}

			var out string
			switch format {
			case "mermaid":
				out = g.Mermaid()
			case "dot":
				out = g.DOT()
			default:
				return configError(fmt.Errorf("unknown graph format %q", format))
			}
			_, err = io.WriteString(a.stdout, out)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "mermaid", "Output format: mermaid or dot")
	return cmd
}
