// Command entitled serves and administers pack entitlements.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xraph/entitle/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "entitled:", err)
		os.Exit(1)
	}
}
