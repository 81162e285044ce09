package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"hostclass/classifier"

	"github.com/spf13/cobra"
)

var cookieCmd = &cobra.Command{
	Use:   "cookie <host> <domain>",
	Short: "Check whether a host may set a cookie for a domain",
	Long: `Check the Domain attribute of a Set-Cookie header sent by host.

Exits 0 when the cookie is legal, 2 when it must be rejected and 1 when
either argument cannot be parsed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv(false)
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		defer e.Close()

		legal, err := handleCookie(os.Stdout, e.classifier(), args[0], args[1])
		if err != nil {
			log.Printf("[ERROR] %v", err)
			os.Exit(1)
		}
		if !legal {
			os.Exit(2)
		}
	},
}

func init() {
	rootCmd.AddCommand(cookieCmd)
}

func handleCookie(w io.Writer, c *classifier.Classifier, host, domain string) (bool, error) {
	legal, err := c.CookieDomain(host, domain)
	if err != nil {
		return false, err
	}

	verdict := "illegal"
	if legal {
		verdict = "legal"
	}
	fmt.Fprintf(w, "%s: Domain=%s is %s\n", host, domain, verdict)
	return legal, nil
}
