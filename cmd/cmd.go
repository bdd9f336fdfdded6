package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cnrancher/autorancher/pkg/common"

	"github.com/morikuni/aec"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const ascIIStr = `
              _                            _
   __ _ _   _| |_ ___  _ __ __ _ _ __   ___| |__   ___ _ __
  / _' | | | | __/ _ \| '__/ _' | '_ \ / __| '_ \ / _ \ '__|
 | (_| | |_| | || (_) | |  | (_| | | | | (__| | | |  __/ |
  \__,_|\__,_|\__\___/|_|   \__,_|_| |_|\___|_| |_|\___|_|

`

var (
	cmd = &cobra.Command{
		Use:              "autorancher",
		Short:            "autorancher deploys Rancher into a nested k3k cluster",
		Long:             `autorancher deploys Rancher into a nested k3k cluster running on an existing Kubernetes host.`,
		TraverseChildren: true,
	}
)

func init() {
	cobra.OnInitialize(initCfg)
	setHelpTemplate(cmd)
	setEnvVars()
	cmd.PersistentFlags().BoolVarP(&common.Debug, "debug", "d", common.Debug, "Enable log debug level")
}

// Command root command.
func Command() *cobra.Command {
	cmd.Run = func(cmd *cobra.Command, _ []string) {
		printASCII()

		if err := cmd.Help(); err != nil {
			logrus.Errorln(err)
			os.Exit(1)
		}
	}
	return cmd
}

func initCfg() {
	if err := os.MkdirAll(common.CfgPath, 0755); err != nil {
		logrus.Fatalf("failed to create config directory %s, %v", common.CfgPath, err)
	}
	if common.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func printASCII() {
	fmt.Print(aec.Apply(ascIIStr))
}

// setEnvVars reads the global overrides before cobra parses any flags, so
// that every subcommand sees the same config path and retry budget.
func setEnvVars() {
	cfgEnv := os.Getenv("AUTORANCHER_CONFIG")
	retryEnv := os.Getenv("AUTORANCHER_RETRY")

	if cfgEnv != "" {
		common.CfgPath = cfgEnv
	}

	if retryEnv != "" {
		retryInt, err := strconv.Atoi(retryEnv)
		if err != nil {
			logrus.Errorln(err)
			os.Exit(1)
		}
		common.RetryAttempts = retryInt
	}
}

func setHelpTemplate(cmd *cobra.Command) {
	t := `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Global Environments:
  AUTORANCHER_CONFIG  Path to the cfg directory to use for CLI requests (default /var/lib/rancher/autorancher)
  AUTORANCHER_RETRY   The number of retries waiting for the desired state (default 60)

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	cmd.SetHelpTemplate(t)
}
