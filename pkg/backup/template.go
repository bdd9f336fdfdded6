package backup

import (
	"github.com/cnrancher/autorancher/pkg/common"
)

const backupTmpl = `apiVersion: resources.cattle.io/v1
kind: Backup
metadata:
  name: {{ .Name }}
spec:
  resourceSetName: {{ .ResourceSet | default "rancher-resource-set" }}
{{- if .CredentialSecret }}
  storageLocation:
    s3:
      credentialSecretName: {{ .CredentialSecret }}
      credentialSecretNamespace: {{ .CredentialSecretNamespace }}
{{- end }}
`

const restoreTmpl = `apiVersion: resources.cattle.io/v1
kind: Restore
metadata:
  name: {{ .Name }}
spec:
  backupFilename: {{ .Filename }}
  prune: false
{{- if .CredentialSecret }}
  storageLocation:
    s3:
      credentialSecretName: {{ .CredentialSecret }}
      credentialSecretNamespace: {{ .CredentialSecretNamespace }}
{{- end }}
`

func operatorValues(job *OperatorJob) map[string]interface{} {
	return map[string]interface{}{
		"Name":                      job.Name,
		"ResourceSet":               job.ResourceSet,
		"CredentialSecret":          job.CredentialSecret,
		"CredentialSecretNamespace": common.BackupNamespace,
		"Filename":                  job.Filename,
	}
}

func backupManifest(job *OperatorJob) (string, error) {
	content, err := common.AssembleManifest(operatorValues(job), backupTmpl, nil)
	return string(content), err
}

func restoreManifest(job *OperatorJob) (string, error) {
	content, err := common.AssembleManifest(operatorValues(job), restoreTmpl, nil)
	return string(content), err
}
