package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"hostclass/classifier"
	"hostclass/domainname"

	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare <a> <b>",
	Short: "Order two hostnames in the domain hierarchy",
	Long: `Print how a relates to b: "less" when a is a subdomain of b, "greater"
when a is an ancestor of b, "equal" for the same name and "incomparable"
for names on different branches.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(false)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		if _, err := handleCompare(os.Stdout, e.classifier(), args[0], args[1]); err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}

func handleCompare(w io.Writer, c *classifier.Classifier, a, b string) (domainname.Ordering, error) {
	ordering, err := c.Compare(a, b)
	if err != nil {
		return ordering, err
	}
	fmt.Fprintln(w, ordering)
	return ordering, nil
}
