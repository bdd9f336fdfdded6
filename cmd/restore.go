package cmd

import (
	"os"

	"github.com/cnrancher/autorancher/pkg/backup"
	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Reapply captured resources and optionally run an operator restore",
		Example: `  autorancher restore --from /tmp/rancher-backup
  autorancher restore --operator-restore pre-upgrade-2026-08-28.tar.gz --credential-secret s3-creds`,
	}

	restoreFrom             string
	restoreOperator         string
	restoreName             string
	restoreCredentialSecret string
)

func init() {
	restoreCmd.Flags().StringVarP(&restoreFrom, "from", "f", "", "Directory holding captured resource files to reapply")
	restoreCmd.Flags().StringVar(&restoreOperator, "operator-restore", "", "Backup artifact filename the operator restores from")
	restoreCmd.Flags().StringVar(&restoreName, "name", "restore", "Name for the operator Restore object")
	restoreCmd.Flags().StringVar(&restoreCredentialSecret, "credential-secret", "", "Storage location credential secret for the operator")
}

// validateRestoreInput requires at least one restore source. A plain
// operator restore is allowed: the artifact lives in the operator's storage
// location, so no local capture directory needs to exist.
func validateRestoreInput(from, operator string) error {
	if from == "" && operator == "" {
		return errors.New("nothing to restore, set --from and/or --operator-restore")
	}
	return nil
}

// RestoreCommand recreates a deployment from a previous backup.
func RestoreCommand() *cobra.Command {
	restoreCmd.Run = utils.CommandExitWithoutHelpInfo(func(cmd *cobra.Command, _ []string) error {
		if err := validateRestoreInput(restoreFrom, restoreOperator); err != nil {
			return err
		}

		if utils.IsTerm() && !utils.AskForConfirmation("Restore will overwrite resources in the target cluster, continue?", true) {
			return nil
		}

		cfg, err := common.LoadConfig()
		if err != nil {
			return err
		}
		coordinator, err := newCoordinator(cfg, restoreOperator != "")
		if err != nil {
			return err
		}

		var job *backup.OperatorJob
		if restoreOperator != "" {
			job = &backup.OperatorJob{
				Name:             restoreName,
				Filename:         restoreOperator,
				CredentialSecret: restoreCredentialSecret,
			}
		}

		report, err := coordinator.Restore(cmd.Context(), restoreFrom, job)
		if err != nil {
			return err
		}
		report.Print(os.Stdout)
		if len(report.Warnings()) > 0 {
			logrus.Warnf("[restore] finished with %d warning(s)", len(report.Warnings()))
		} else {
			logrus.Infoln("[restore] finished")
		}
		return nil
	})
	return restoreCmd
}
