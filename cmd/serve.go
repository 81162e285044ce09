package cmd

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"hostclass/service"

	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the classification service",
	Long: `Start the hostclass HTTP service.

The service answers classification, cookie and comparison queries over a
JSON API, keeps the suffix list and IP lists fresh in the background and
reloads its configuration when the file changes.`,
	Run: func(cmd *cobra.Command, args []string) {
		runService()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (default from config or 127.0.0.1:8053)")
}

func runService() {
	log.Printf("hostclass version %s", GetVersion())

	svc, err := service.New(service.Options{
		ConfigPath: configFile,
		CacheDir:   cacheDir,
		Listen:     listenAddr,
		UserAgent:  GetUserAgent(),
		Version:    GetVersion(),
		Verbose:    verbose,
	})
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan, err := svc.Start()
	if err != nil {
		if shutdownErr := svc.Shutdown(); shutdownErr != nil {
			log.Printf("Shutdown error: %v", shutdownErr)
		}

		log.Fatalf("[FATAL] Failed to start service: %v", err)
	}

	log.Printf("hostclass is listening on %s", svc.Addr())

	select {
	case <-sigChan:
	case err := <-errChan:
		if err != nil {
			log.Printf("[ERROR] Server stopped: %v", err)
		}
	}

	if err := svc.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
