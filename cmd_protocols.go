package main

import (
	"fmt"
	"text/tabwriter"

	"coherency/protocol"

	"github.com/spf13/cobra"
)

func newProtocolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "protocols",
		Short: "Print the transition table of every protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printProtocols(cmd)
		},
	}
}

// printProtocols lists the state-changing rows of each table. Reserved
// protocols have none and say so.
func printProtocols(cmd *cobra.Command) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, p := range protocol.Protocols() {
		fmt.Fprintf(tw, "%v\n", p)
		rows := protocol.Table(p)
		if len(rows) == 0 {
			fmt.Fprintf(tw, "  (reserved: every request keeps the current state)\n\n")
			continue
		}
		fmt.Fprintf(tw, "  from\trequest\tto\tlatency\tinvalidate\twriteback\n")
		for _, t := range rows {
			r := protocol.Respond(t.From, t.To)
			fmt.Fprintf(tw, "  %v\t%v\t%v\t%dns\t%t\t%t\n",
				t.From, t.Request, t.To, r.LatencyNs, r.RequiresInvalidation, r.RequiresWriteback)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
