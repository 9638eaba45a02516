package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"photoline/internal/faults"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			printError(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// printError renders registry failures with their message and first
// troubleshooting hint; other errors print as-is.
func printError(w io.Writer, err error) {
	var fe *faults.Error
	if !errors.As(err, &fe) {
		fmt.Fprintln(w, err)
		return
	}
	def, ok := faults.Lookup(fe.Code)
	if !ok {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintf(w, "%s: %s\n", fe.Code, def.Message)
	if fe.Detail != "" {
		fmt.Fprintf(w, "  detail: %s\n", fe.Detail)
	}
	if fe.URL != "" {
		fmt.Fprintf(w, "  stored at: %s\n", fe.URL)
	}
	if len(def.Troubleshooting) > 0 {
		fmt.Fprintf(w, "  try: %s\n", def.Troubleshooting[0])
	}
}
