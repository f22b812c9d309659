// Command directoryctl administers the student directory without Telegram:
// migrations, the field catalogue, CSV imports, lookups and bot access.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCommand(a).ExecuteContext(ctx)
	a.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "directoryctl",
		Short:         "Administer the student directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newMigrateCommand(a),
		newSeedFieldsCommand(a),
		newImportCommand(a),
		newSearchCommand(a),
		newHistoryCommand(a),
		newGrantCommand(a),
		newHashInviteCommand(),
	)
	return root
}
