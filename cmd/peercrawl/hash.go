package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/peercrawl/internal/position"
)

// NewHashCmd creates the hash command.
func NewHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [url|word]...",
		Short: "Print the positions of URLs or words",
		Long: `Hash prints the position of each argument in the shared address space.

URLs are normalized first; the output shows the URL position, the host
position embedded in it and whether the host is in a local network.
With --word, arguments are hashed as index words instead.

Examples:
  peercrawl hash http://www.example.com/ https://example.org/docs
  peercrawl hash --word peer Peer PEER`,
		Args: cobra.MinimumNArgs(1),
		RunE: runHashCmd,
	}

	cmd.Flags().BoolP("word", "w", false, "Hash arguments as index words")

	return cmd
}

func runHashCmd(cmd *cobra.Command, args []string) error {
	word, err := cmd.Flags().GetBool("word")
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	if word {
		for _, arg := range args {
			pos, err := position.WordHash(arg)
			if err != nil {
				return fmt.Errorf("cannot hash %q: %w", arg, err)
			}
			fmt.Fprintf(tw, "%s\t%s\n", pos, arg)
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "POSITION\tHOST\tLOCAL\tURL")
	for _, arg := range args {
		u, err := position.ParseURL(arg)
		if err != nil {
			return fmt.Errorf("cannot hash %q: %w", arg, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", u.Position(), u.HostPosition(), u.IsLocal(), u)
	}
	return tw.Flush()
}
