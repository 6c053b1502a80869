// File: cmd/version.go
package cmd

import "github.com/spf13/cobra"

// Build metadata. These values are intended to be set at build time using
// ldflags.
// Example: go build -ldflags "-X github.com/mlvn23/patentflow/cmd.Version=1.0.0"
var (
	Version   = "1.0"
	Commit    = "none"
	BuildDate = "unknown"
)

// newVersionCmd creates the `version` command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, commit, and build date",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("patentflow %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
