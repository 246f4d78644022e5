package cli

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chainJSON bool

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Show per-source snapshot chains",
	Run:   runChain,
}

func init() {
	chainCmd.Flags().BoolVar(&chainJSON, "json", false, "Emit the chains as JSON")
}

func runChain(cmd *cobra.Command, args []string) {
	c := initContext(chainJSON)

	chains, err := c.Chain.Chains()
	if err != nil {
		fail(err, chainJSON)
	}

	if chainJSON {
		printJSON(chains)
		return
	}
	if len(chains) == 0 {
		fmt.Println("No snapshots yet")
		return
	}

	sources := make([]string, 0, len(chains))
	for src := range chains {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	cyan := color.New(color.FgCyan)
	dim := color.New(color.Faint)
	for _, src := range sources {
		fmt.Printf("%s\n", src)
		for _, sum := range chains[src] {
			marker := "├─"
			if sum.SequenceNumber == len(chains[src])-1 {
				marker = "└─"
			}
			fmt.Printf("  %s ", marker)
			cyan.Printf("%s", sum.Name)
			fmt.Printf(" (seq %d", sum.SequenceNumber)
			if sum.HasFullData {
				fmt.Printf(", full")
			} else {
				fmt.Printf(", hash-only")
			}
			if sum.DeltaPresent() {
				fmt.Printf(", delta")
			}
			fmt.Printf(")")
			dim.Printf("  %s\n", sum.Created.Format("2006-01-02 15:04"))
		}
	}
}
