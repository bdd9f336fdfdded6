package utils

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func AskForConfirmationWithError(s string, def bool) (rtn bool, err error) {
	prompt := survey.Confirm{
		Message: s,
		Default: def,
	}
	err = survey.AskOne(&prompt, &rtn)
	return
}

// AskForConfirmation ask for confirmation from os.Stdin.
func AskForConfirmation(s string, def bool) (rtn bool) {
	var err error
	if rtn, err = AskForConfirmationWithError(s, def); err != nil {
		logrus.Warnf("failed to confirm, %v", err)
	}
	return
}

// StripUserHome expands a leading ~/ to the current user's home directory.
func StripUserHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			logrus.Warnf("failed to resolve user home, %v", err)
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func IsTerm() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

func CommandExitWithoutHelpInfo(f func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := f(cmd, args); err != nil {
			cmd.PrintErr(err)
			os.Exit(1)
		}
	}
}
