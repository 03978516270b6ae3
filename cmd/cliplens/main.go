// Package main provides the entry point for the ClipLens API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cliplens",
	Short: "ClipLens short-video analysis server",
	Long:  "ClipLens turns a short-video URL into a transcript and a streamed structured analysis (sentiment, narrative structure, topics and keywords) over a REST + SSE API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
