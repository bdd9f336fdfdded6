package cmd

import (
	"os"
	"path/filepath"

	"github.com/cnrancher/autorancher/pkg/backup"
	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/kube"
	"github.com/cnrancher/autorancher/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Capture the nested cluster resources and optionally run an operator backup",
		Example: `  autorancher backup
  autorancher backup --out /tmp/rancher-backup --operator pre-upgrade`,
	}

	backupOut              string
	backupOperator         string
	backupResourceSet      string
	backupCredentialSecret string
)

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Directory to write captured resources to (default <cfg-path>/<cluster-name>/backup)")
	backupCmd.Flags().StringVar(&backupOperator, "operator", "", "Also submit a rancher-backup operator Backup with this name")
	backupCmd.Flags().StringVar(&backupResourceSet, "resource-set", "rancher-resource-set", "Resource set the operator backup includes")
	backupCmd.Flags().StringVar(&backupCredentialSecret, "credential-secret", "", "Storage location credential secret for the operator")
}

// BackupCommand captures deployment state so it can be recreated later.
func BackupCommand() *cobra.Command {
	backupCmd.Run = utils.CommandExitWithoutHelpInfo(func(cmd *cobra.Command, _ []string) error {
		cfg, err := common.LoadConfig()
		if err != nil {
			return err
		}
		outDir := backupOut
		if outDir == "" {
			outDir = filepath.Join(common.CfgPath, cfg.ClusterName, "backup")
		}

		coordinator, err := newCoordinator(cfg, backupOperator != "")
		if err != nil {
			return err
		}

		manifest := backup.DefaultManifest(cfg)
		if backupOperator != "" {
			manifest.Operator = &backup.OperatorJob{
				Name:             backupOperator,
				ResourceSet:      backupResourceSet,
				CredentialSecret: backupCredentialSecret,
			}
		}

		report, err := coordinator.Backup(cmd.Context(), manifest, outDir)
		if err != nil {
			return err
		}
		report.Print(os.Stdout)
		if len(report.Warnings()) > 0 {
			logrus.Warnf("[backup] finished with %d warning(s), resources saved to %s", len(report.Warnings()), outDir)
		} else {
			logrus.Infof("[backup] finished, resources saved to %s", outDir)
		}
		return nil
	})
	return backupCmd
}

// newCoordinator wires the host client and, when an operator job must run,
// the nested cluster client from the kubeconfig a deploy wrote earlier.
func newCoordinator(cfg *common.Config, needNested bool) (*backup.Coordinator, error) {
	host, err := kube.NewClient(cfg.KubeconfigFile, nil)
	if err != nil {
		return nil, err
	}
	var nested backup.Target
	if needNested {
		nestedClient, err := kube.NewClient(cfg.NestedKubeconfigPath(), nil)
		if err != nil {
			return nil, err
		}
		nested = nestedClient
	}
	return backup.NewCoordinator(logrus.StandardLogger(), host, nested,
		cfg.RetryAttempts, cfg.RetryDelay), nil
}
