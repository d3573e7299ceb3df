package commands

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/gogpu/hiz/backend"
	"github.com/spf13/cobra"
)

var probeBackends bool

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered compute backends",
	Long: `Backends lists the registered compute backends. With --probe each
backend is opened to report its adapter and limits, or why it is unavailable.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listBackends(cmd.OutOrStdout(), backend.Available(), probeBackends)
	},
}

func init() {
	backendsCmd.Flags().BoolVar(&probeBackends, "probe", false, "open each backend and report its capabilities")
	rootCmd.AddCommand(backendsCmd)
}

// listBackends writes one row per backend name. Probing opens and closes
// each backend.
func listBackends(w io.Writer, names []string, probe bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !probe {
		fmt.Fprintln(tw, "BACKEND")
		for _, name := range names {
			fmt.Fprintln(tw, name)
		}
		return tw.Flush()
	}

	fmt.Fprintln(tw, "BACKEND\tSTATUS\tADAPTER\tMAX TEXTURE\tCOMPUTE")
	for _, name := range names {
		a, err := backend.Open(name)
		if err != nil {
			fmt.Fprintf(tw, "%s\tunavailable\t%v\t-\t-\n", name, err)
			continue
		}
		caps := a.Capabilities()
		fmt.Fprintf(tw, "%s\tok\t%s\t%d\t%t\n", name, caps.Name, caps.MaxTextureDimension2D, caps.SupportsCompute)
		closeAdapter(a, slog.New(slog.DiscardHandler))
	}
	return tw.Flush()
}
