// Command iborker allocates gateway client IDs for the tools of the suite.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/iborker/iborker/internal/cmd"
	"github.com/iborker/iborker/internal/errors"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		atexit.Exit(0)
	}

	var exitErr *cmd.ExitError
	if errors.As(err, &exitErr) {
		atexit.Exit(exitErr.Code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if hint := errors.HintFor(err); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	atexit.Exit(1)
}
