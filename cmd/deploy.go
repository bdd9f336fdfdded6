package cmd

import (
	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/deploy"
	"github.com/cnrancher/autorancher/pkg/utils"

	"github.com/AlecAivazis/survey/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Deploy Rancher into a nested k3k cluster",
		Example: `  autorancher deploy --hostname rancher.example.com
  autorancher deploy --hostname rancher.example.com --registry registry.example.com \
    --registry-username admin --registry-password secret --registry-ca-file /etc/ssl/registry-ca.pem`,
	}

	deploySet = []string{}

	kubeconfigFlag        string
	hostnameFlag          string
	bootstrapPasswordFlag string
	clusterNameFlag       string
	serversFlag           int
	k3sVersionFlag        string
	rancherVersionFlag    string
	registryFlag          string
	registryUsernameFlag  string
	registryPasswordFlag  string
	registryCAFlag        string
)

func init() {
	deployCmd.Flags().StringVar(&kubeconfigFlag, "kubeconfig", "", "Path to the host cluster kubeconfig, in-cluster config or $KUBECONFIG is used when empty")
	deployCmd.Flags().StringVarP(&hostnameFlag, "hostname", "H", "", "Hostname Rancher will be reachable at")
	deployCmd.Flags().StringVar(&bootstrapPasswordFlag, "bootstrap-password", "", "Initial Rancher admin password")
	deployCmd.Flags().StringVarP(&clusterNameFlag, "name", "n", "", "Name of the nested cluster")
	deployCmd.Flags().IntVar(&serversFlag, "servers", 0, "Number of nested cluster server nodes")
	deployCmd.Flags().StringVar(&k3sVersionFlag, "k3s-version", "", "K3s version for the nested cluster, cluster default when empty")
	deployCmd.Flags().StringVar(&rancherVersionFlag, "rancher-version", "", "Rancher chart version, latest when empty")
	deployCmd.Flags().StringVar(&registryFlag, "registry", "", "Private registry pulling rancher images")
	deployCmd.Flags().StringVar(&registryUsernameFlag, "registry-username", "", "Private registry username")
	deployCmd.Flags().StringVar(&registryPasswordFlag, "registry-password", "", "Private registry password")
	deployCmd.Flags().StringVar(&registryCAFlag, "registry-ca-file", "", "Path to the private CA certificate file")
	deployCmd.Flags().StringArrayVar(&deploySet, "set", deploySet, "Extra rancher chart values, helm --set syntax")
}

// DeployCommand deploys the whole stack, k3k controller to Rancher.
func DeployCommand() *cobra.Command {
	deployCmd.Run = utils.CommandExitWithoutHelpInfo(func(cmd *cobra.Command, _ []string) error {
		cfg, err := deployConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logFile, err := common.GetLogFile(cfg.ClusterName)
		if err != nil {
			return err
		}
		defer logFile.Close()

		deployer, err := deploy.NewDeployer(cfg, common.NewLogger(logFile))
		if err != nil {
			return err
		}
		return deployer.Run(cmd.Context())
	})
	return deployCmd
}

func deployConfig(cmd *cobra.Command) (*common.Config, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}

	// flags win over config file and environment
	if cmd.Flags().Changed("kubeconfig") {
		cfg.KubeconfigFile = kubeconfigFlag
	}
	if cmd.Flags().Changed("hostname") {
		cfg.Hostname = hostnameFlag
	}
	if cmd.Flags().Changed("bootstrap-password") {
		cfg.BootstrapPassword = bootstrapPasswordFlag
	}
	if cmd.Flags().Changed("name") {
		cfg.ClusterName = clusterNameFlag
	}
	if cmd.Flags().Changed("servers") {
		cfg.Servers = serversFlag
	}
	if cmd.Flags().Changed("k3s-version") {
		cfg.K3sVersion = k3sVersionFlag
	}
	if cmd.Flags().Changed("rancher-version") {
		cfg.RancherVersion = rancherVersionFlag
	}
	if cmd.Flags().Changed("registry") {
		cfg.Registry = registryFlag
	}
	if cmd.Flags().Changed("registry-username") {
		cfg.RegistryUsername = registryUsernameFlag
	}
	if cmd.Flags().Changed("registry-password") {
		cfg.RegistryPassword = registryPasswordFlag
	}
	if cmd.Flags().Changed("registry-ca-file") {
		cfg.CAFile = utils.StripUserHome(registryCAFlag)
	}
	if cmd.Flags().Changed("set") {
		cfg.ExtraValues = append(cfg.ExtraValues, deploySet...)
	}

	if err := askMissing(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// askMissing prompts for the required values nothing else provided. Every
// question can be pre-answered through flags, the config file or
// AUTORANCHER_* variables, so automation never hits a prompt.
func askMissing(cfg *common.Config) error {
	if !utils.IsTerm() {
		return nil
	}
	qs := []*survey.Question{}
	if cfg.Hostname == "" {
		qs = append(qs, &survey.Question{
			Name:     "hostname",
			Prompt:   &survey.Input{Message: "Hostname Rancher will be reachable at"},
			Validate: survey.Required,
		})
	}
	if cfg.BootstrapPassword == "" {
		qs = append(qs, &survey.Question{
			Name:     "bootstrapPassword",
			Prompt:   &survey.Password{Message: "Initial Rancher admin password"},
			Validate: survey.Required,
		})
	}
	if len(qs) == 0 {
		return nil
	}

	answers := struct {
		Hostname          string
		BootstrapPassword string
	}{}
	if err := survey.Ask(qs, &answers); err != nil {
		return err
	}
	if answers.Hostname != "" {
		cfg.Hostname = answers.Hostname
	}
	if answers.BootstrapPassword != "" {
		cfg.BootstrapPassword = answers.BootstrapPassword
	}
	logrus.Debugf("[deploy] collected %d answers interactively", len(qs))
	return nil
}
