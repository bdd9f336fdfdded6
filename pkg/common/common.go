package common

import (
	"time"
)

const (
	ConfigFile = "config.yaml"

	// CattleNamespace is where Rancher is installed inside the nested cluster.
	CattleNamespace = "cattle-system"
	// CertManagerNamespace is where cert-manager is installed inside the nested cluster.
	CertManagerNamespace = "cert-manager"
	// K3kNamespace is where the k3k controller chart is installed on the host cluster.
	K3kNamespace = "k3k-system"
	// BackupNamespace is where the rancher-backup operator runs.
	BackupNamespace = "cattle-resources-system"

	DefaultK3kRepo         = "https://rancher.github.io/k3k"
	DefaultCertManagerRepo = "https://charts.jetstack.io"
	DefaultRancherRepo     = "https://releases.rancher.com/server-charts/latest"
)

var (
	CfgPath = "/var/lib/rancher/autorancher"
	Debug   = false

	// Poll budget applied to every wait point unless overridden, roughly
	// ten minutes per gate.
	RetryAttempts = 60
	RetryDelay    = 10 * time.Second
)
