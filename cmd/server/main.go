package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "link-tracker",
	Short: "Tracking redirect service",
	Long: `link-tracker issues tracking slugs, records every visit and forwards
visit details to a notification webhook. Visits on slugs created with an
identifier also schedule a background enrichment job.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		withWorker, _ := cmd.Flags().GetBool("with-worker")
		return runServer(cmd.Context(), withWorker)
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume enrichment jobs from Redis",
	Long: `worker subscribes to the enrichment job stream and runs the enrichment
tool for every job. It requires REDIS_URL; without Redis the server runs jobs
in-process instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file; real environment variables take precedence")
	serveCmd.Flags().Bool("with-worker", false, "also consume enrichment jobs in this process when Redis is configured")

	rootCmd.AddCommand(serveCmd, workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
