package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"hostclass/classifier"

	"github.com/spf13/cobra"
)

var prettyOutput bool

var classifyCmd = &cobra.Command{
	Use:   "classify <host>...",
	Short: "Classify hostnames and IP literals",
	Long: `Normalize each host and print its classification as one JSON document
per line: hostname, URI host, TLD, registrable domain, canonical flags,
label details for DNS names and list/ASN matches for IP literals.

Hosts may carry a port (example.com:443, [::1]:8080).`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(true)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		failed := handleClassify(os.Stdout, e.classifier(), args, prettyOutput)
		if failed > 0 {
			e.Close()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().BoolVarP(&prettyOutput, "pretty", "p", false, "Indent the JSON output")
}

type classifyError struct {
	Input string `json:"input"`
	Error string `json:"error"`
}

// handleClassify writes one document per host and returns how many hosts
// could not be classified.
func handleClassify(w io.Writer, c *classifier.Classifier, hosts []string, pretty bool) int {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}

	failed := 0
	for _, host := range hosts {
		result, err := c.Classify(host)
		if err != nil {
			failed++
			enc.Encode(classifyError{Input: host, Error: err.Error()})
			continue
		}
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode %s: %v\n", host, err)
			failed++
		}
	}
	return failed
}
