package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"hostclass/classifier"
	"hostclass/domainname"

	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <label>...",
	Short: "Show the IDNA classification of DNS labels",
	Long: `Evaluate the label predicates (ASCII, LDH, R-LDH, NR-LDH, XN, A-label,
NFC, U-label) for each argument. Labels are taken as given and are not
lowercased or encoded first.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		handleLabels(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func handleLabels(w io.Writer, labels []string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tASCII\tLDH\tR-LDH\tNR-LDH\tXN\tA\tNFC\tU")
	for _, l := range labels {
		info := classifier.DescribeLabel(domainname.Label(l))
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			info.Label, yesNo(info.ASCII), yesNo(info.LDH), yesNo(info.RLDH), yesNo(info.NRLDH),
			yesNo(info.XN), yesNo(info.A), yesNo(info.NFC), yesNo(info.U))
	}
	tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
