// Command studyai is the entry point for the study assistant. It ingests
// session folders of PDFs into a vector store and answers student questions
// from them, via a Cobra CLI and an optional HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/studyai-go/cmd/studyai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
