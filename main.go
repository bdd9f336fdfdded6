package main

import (
	"os"

	"github.com/cnrancher/autorancher/cmd"
)

var (
	gitVersion   string
	gitCommit    string
	gitTreeState string
	buildDate    string
)

func main() {
	rootCmd := cmd.Command()
	rootCmd.AddCommand(cmd.CompletionCommand(), cmd.VersionCommand(gitVersion, gitCommit, gitTreeState, buildDate),
		cmd.DeployCommand(), cmd.BackupCommand(), cmd.RestoreCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
