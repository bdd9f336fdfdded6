package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/credentials"
	"github.com/cnrancher/autorancher/pkg/helm"
	"github.com/cnrancher/autorancher/pkg/kube"
	"github.com/cnrancher/autorancher/pkg/poll"
)

const (
	k3kRelease         = "k3k"
	certManagerRelease = "cert-manager"
	rancherRelease     = "rancher"
)

// Deployer drives the full install/upgrade sequence. The host cluster
// client exists from the start; the nested cluster client only comes alive
// once the kubeconfig step has run.
type Deployer struct {
	cfg    *common.Config
	bundle *credentials.Bundle
	logger *logrus.Logger

	host     *kube.Client
	hostHelm *helm.Runner

	nested     *kube.Client
	nestedHelm *helm.Runner
}

func NewDeployer(cfg *common.Config, logger *logrus.Logger) (*Deployer, error) {
	host, err := kube.NewClient(cfg.KubeconfigFile, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build host cluster client")
	}
	return &Deployer{
		cfg:      cfg,
		bundle:   cfg.CredentialBundle(),
		logger:   logger,
		host:     host,
		hostHelm: helm.NewRunner(cfg.KubeconfigFile, logger),
	}, nil
}

// Run preflights the host cluster, then executes the deployment sequence.
func (d *Deployer) Run(ctx context.Context) error {
	if err := d.preflight(ctx); err != nil {
		return err
	}
	sequencer := &Sequencer{Logger: d.logger}
	results, err := d.run(ctx, sequencer)
	if err != nil {
		return err
	}
	skipped := 0
	for _, result := range results {
		if result.State == StateSkipped {
			skipped++
		}
	}
	if skipped == len(results) {
		d.logger.Infof("[deploy] nothing to do, rancher at https://%s is already up to date", d.cfg.Hostname)
	} else {
		d.logger.Infof("[deploy] rancher is ready at https://%s", d.cfg.Hostname)
	}
	return nil
}

func (d *Deployer) run(ctx context.Context, sequencer *Sequencer) ([]StepResult, error) {
	return sequencer.Run(ctx, d.steps())
}

// preflight hard-fails before any mutation when the host cluster is not
// usable or the configured --set values do not parse.
func (d *Deployer) preflight(ctx context.Context) error {
	ready, err := d.host.NodesReady(ctx)
	if err != nil {
		return errors.Wrap(err, "[deploy] calling preflight error: cannot reach host cluster")
	}
	if !ready {
		return errors.New("[deploy] calling preflight error: host cluster nodes are not all Ready, inspect with: kubectl get nodes")
	}
	if _, err := common.GenerateValues(d.cfg.ExtraValues, nil); err != nil {
		return errors.Wrap(err, "[deploy] calling preflight error: invalid --set value")
	}
	return nil
}

func (d *Deployer) steps() []*Step {
	steps := []*Step{
		d.k3kControllerStep(),
		d.namespaceStep(),
	}
	if d.bundle.HasAuth() {
		steps = append(steps, d.registrySecretStep())
	}
	if d.bundle.HasCA() {
		steps = append(steps, d.caConfigMapStep())
	}
	steps = append(steps,
		d.nestedClusterStep(),
		d.kubeconfigStep(),
		d.certManagerStep(),
		d.rancherStep(),
	)
	return steps
}

func (d *Deployer) pollSpec(name string, failure ...string) *poll.Spec {
	return &poll.Spec{
		Name:        name,
		Success:     []string{"Ready"},
		Failure:     failure,
		MaxAttempts: d.cfg.RetryAttempts,
		Delay:       d.cfg.RetryDelay,
	}
}

func (d *Deployer) authFlags() []string {
	return credentials.Propagate(d.bundle, credentials.TargetAuthFlags)[credentials.TargetAuthFlags].Flags
}

// helmChartCheck classifies a release against the wanted version: absent,
// deployed at another version, or already up to date. An empty wanted
// version accepts whatever is deployed.
func helmChartCheck(ctx context.Context, runner *helm.Runner, release, namespace, wanted string) (Check, error) {
	deployed, err := runner.DeployedChartVersion(ctx, release, namespace)
	if err != nil {
		return CheckMissing, err
	}
	switch {
	case deployed == "":
		return CheckMissing, nil
	case wanted == "" || deployed == wanted:
		return CheckUpToDate, nil
	default:
		return CheckOutdated, nil
	}
}

func (d *Deployer) k3kControllerStep() *Step {
	return &Step{
		Name:    "install k3k controller",
		Inspect: fmt.Sprintf("kubectl -n %s get deployment %s", common.K3kNamespace, k3kRelease),
		Precondition: func(ctx context.Context) (Check, error) {
			return helmChartCheck(ctx, d.hostHelm, k3kRelease, common.K3kNamespace, d.cfg.K3kVersion)
		},
		Action: func(ctx context.Context) error {
			if err := d.hostHelm.RepoAdd(ctx, "k3k", d.cfg.K3kRepo, d.authFlags()); err != nil {
				return err
			}
			if err := d.hostHelm.RepoUpdate(ctx); err != nil {
				return err
			}
			return d.hostHelm.UpgradeInstall(ctx, k3kRelease, "k3k/k3k", d.cfg.K3kVersion,
				common.K3kNamespace, "", d.cfg.ExtraValues)
		},
		Post: &Postcondition{
			Spec: d.pollSpec("k3k controller deployment"),
			Accessor: func(ctx context.Context) (string, error) {
				return d.host.DeploymentState(ctx, common.K3kNamespace, k3kRelease)
			},
		},
	}
}

func (d *Deployer) namespaceStep() *Step {
	return &Step{
		Name:    "create cluster namespace",
		Inspect: fmt.Sprintf("kubectl get namespace %s", d.cfg.ClusterNamespace),
		Precondition: func(ctx context.Context) (Check, error) {
			exists, err := d.host.Exists(ctx, kube.ResourceRef{
				APIVersion: "v1", Kind: "Namespace", Name: d.cfg.ClusterNamespace,
			})
			if err != nil {
				return CheckMissing, err
			}
			if exists {
				return CheckUpToDate, nil
			}
			return CheckMissing, nil
		},
		Action: func(ctx context.Context) error {
			return d.host.EnsureNamespace(ctx, d.cfg.ClusterNamespace)
		},
	}
}

func (d *Deployer) registrySecretStep() *Step {
	return &Step{
		Name:    "create registry auth secret",
		Inspect: fmt.Sprintf("kubectl -n %s get secret %s", d.cfg.ClusterNamespace, credentials.RegistrySecretName),
		Precondition: func(ctx context.Context) (Check, error) {
			secret, err := d.host.GetSecret(ctx, d.cfg.ClusterNamespace, credentials.RegistrySecretName)
			if err != nil {
				return CheckMissing, err
			}
			if secret == nil {
				return CheckMissing, nil
			}
			if string(secret.Data["username"]) == d.bundle.Username &&
				string(secret.Data["password"]) == d.bundle.Password {
				return CheckUpToDate, nil
			}
			return CheckOutdated, nil
		},
		Action: func(ctx context.Context) error {
			return d.host.EnsureSecret(ctx, d.cfg.ClusterNamespace, credentials.RegistrySecretName, map[string]string{
				"username": d.bundle.Username,
				"password": d.bundle.Password,
			})
		},
	}
}

func (d *Deployer) caConfigMapStep() *Step {
	return &Step{
		Name:    "create private CA configmap",
		Inspect: fmt.Sprintf("kubectl -n %s get configmap %s", d.cfg.ClusterNamespace, credentials.CAConfigMapName),
		Precondition: func(ctx context.Context) (Check, error) {
			ca, err := d.bundle.ReadCA()
			if err != nil {
				return CheckMissing, errors.Wrap(err, "failed to read CA bundle")
			}
			configMap, err := d.host.GetConfigMap(ctx, d.cfg.ClusterNamespace, credentials.CAConfigMapName)
			if err != nil {
				return CheckMissing, err
			}
			if configMap == nil {
				return CheckMissing, nil
			}
			if configMap.Data["cacerts.pem"] == string(ca) {
				return CheckUpToDate, nil
			}
			return CheckOutdated, nil
		},
		Action: func(ctx context.Context) error {
			ca, err := d.bundle.ReadCA()
			if err != nil {
				return errors.Wrap(err, "failed to read CA bundle")
			}
			return d.host.EnsureConfigMap(ctx, d.cfg.ClusterNamespace, credentials.CAConfigMapName, map[string]string{
				"cacerts.pem": string(ca),
			})
		},
	}
}

func (d *Deployer) clusterRef() kube.ResourceRef {
	return kube.ResourceRef{
		APIVersion: "k3k.io/v1alpha1",
		Kind:       "Cluster",
		Namespace:  d.cfg.ClusterNamespace,
		Name:       d.cfg.ClusterName,
	}
}

func (d *Deployer) kubeconfigSecretName() string {
	return fmt.Sprintf("%s-kubeconfig", d.cfg.ClusterName)
}

func (d *Deployer) nestedClusterStep() *Step {
	ref := d.clusterRef()
	return &Step{
		Name:    "create nested cluster",
		Inspect: ref.InspectCommand(),
		Precondition: func(ctx context.Context) (Check, error) {
			exists, err := d.host.Exists(ctx, ref)
			if err != nil || !exists {
				return CheckMissing, err
			}
			if d.cfg.K3sVersion != "" {
				version, err := d.host.GetField(ctx, ref, "spec.version")
				if err == nil && version != d.cfg.K3sVersion {
					return CheckOutdated, nil
				}
			}
			// the postcondition still verifies readiness on re-runs
			kubeconfig, err := d.host.GetSecret(ctx, d.cfg.ClusterNamespace, d.kubeconfigSecretName())
			if err != nil {
				return CheckMissing, err
			}
			if kubeconfig == nil {
				return CheckOutdated, nil
			}
			return CheckUpToDate, nil
		},
		Action: func(ctx context.Context) error {
			manifest, err := d.clusterManifest()
			if err != nil {
				return err
			}
			return d.host.Apply(ctx, manifest)
		},
		Post: &Postcondition{
			Spec: d.pollSpec("nested cluster provisioning", "Error", "Failed"),
			Accessor: func(ctx context.Context) (string, error) {
				secret, err := d.host.GetSecret(ctx, d.cfg.ClusterNamespace, d.kubeconfigSecretName())
				if err != nil {
					return "", err
				}
				if secret == nil {
					if phase, err := d.host.GetField(ctx, ref, "status.phase"); err == nil {
						return phase, nil
					}
					return "Provisioning", nil
				}
				return "Ready", nil
			},
		},
	}
}

// connectNested builds the nested cluster clients from the kubeconfig file
// on disk. It is shared by the kubeconfig step's precondition and action so
// that re-runs which skip the step still end up connected.
func (d *Deployer) connectNested() error {
	path := d.cfg.NestedKubeconfigPath()
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	nested, err := kube.NewClient("", content)
	if err != nil {
		return err
	}
	d.nested = nested
	d.nestedHelm = helm.NewRunner(path, d.logger)
	return nil
}

func (d *Deployer) kubeconfigStep() *Step {
	return &Step{
		Name:    "write nested cluster kubeconfig",
		Inspect: fmt.Sprintf("kubectl -n %s get secret %s", d.cfg.ClusterNamespace, d.kubeconfigSecretName()),
		Precondition: func(_ context.Context) (Check, error) {
			if _, err := os.Stat(d.cfg.NestedKubeconfigPath()); err != nil {
				return CheckMissing, nil
			}
			if err := d.connectNested(); err != nil {
				// stale kubeconfig on disk, fetch it again
				return CheckOutdated, nil
			}
			return CheckUpToDate, nil
		},
		Action: func(ctx context.Context) error {
			secret, err := d.host.GetSecret(ctx, d.cfg.ClusterNamespace, d.kubeconfigSecretName())
			if err != nil {
				return err
			}
			if secret == nil {
				return errors.Errorf("kubeconfig secret %s not found", d.kubeconfigSecretName())
			}
			path := d.cfg.NestedKubeconfigPath()
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := os.WriteFile(path, secret.Data["kubeconfig.yaml"], 0600); err != nil {
				return err
			}
			return d.connectNested()
		},
	}
}

func (d *Deployer) certManagerStep() *Step {
	return &Step{
		Name:    "install cert-manager",
		Inspect: fmt.Sprintf("kubectl -n %s get deployment cert-manager-webhook", common.CertManagerNamespace),
		Precondition: func(ctx context.Context) (Check, error) {
			return helmChartCheck(ctx, d.nestedHelm, certManagerRelease, common.CertManagerNamespace, d.cfg.CertManagerVersion)
		},
		Action: func(ctx context.Context) error {
			if err := d.nestedHelm.RepoAdd(ctx, "jetstack", d.cfg.CertManagerRepo, d.authFlags()); err != nil {
				return err
			}
			if err := d.nestedHelm.RepoUpdate(ctx); err != nil {
				return err
			}
			return d.nestedHelm.UpgradeInstall(ctx, certManagerRelease, "jetstack/cert-manager",
				d.cfg.CertManagerVersion, common.CertManagerNamespace, "", []string{"installCRDs=true"})
		},
		Post: &Postcondition{
			Spec: d.pollSpec("cert-manager webhook deployment"),
			Accessor: func(ctx context.Context) (string, error) {
				return d.nested.DeploymentState(ctx, common.CertManagerNamespace, "cert-manager-webhook")
			},
		},
	}
}

func (d *Deployer) rancherStep() *Step {
	return &Step{
		Name:    "install rancher",
		Inspect: fmt.Sprintf("kubectl -n %s get deployment %s", common.CattleNamespace, rancherRelease),
		Precondition: func(ctx context.Context) (Check, error) {
			return helmChartCheck(ctx, d.nestedHelm, rancherRelease, common.CattleNamespace, d.cfg.RancherVersion)
		},
		Action: func(ctx context.Context) error {
			// the manifests reference the secret/configmap, so mirror them
			// into the nested cluster before installing the chart
			if err := d.mirrorCredentials(ctx); err != nil {
				return err
			}
			if err := d.nestedHelm.RepoAdd(ctx, "rancher", d.cfg.RancherRepo, d.authFlags()); err != nil {
				return err
			}
			if err := d.nestedHelm.RepoUpdate(ctx); err != nil {
				return err
			}
			values, err := d.rancherValues()
			if err != nil {
				return err
			}
			return d.nestedHelm.UpgradeInstall(ctx, rancherRelease, "rancher/rancher",
				d.cfg.RancherVersion, common.CattleNamespace, values, d.cfg.ExtraValues)
		},
		Post: &Postcondition{
			Spec: d.pollSpec("rancher deployment", "Error"),
			Accessor: func(ctx context.Context) (string, error) {
				return d.nested.DeploymentState(ctx, common.CattleNamespace, rancherRelease)
			},
		},
	}
}

func (d *Deployer) mirrorCredentials(ctx context.Context) error {
	if err := d.nested.EnsureNamespace(ctx, common.CattleNamespace); err != nil {
		return err
	}
	if d.bundle.HasAuth() {
		if err := d.nested.EnsureSecret(ctx, common.CattleNamespace, credentials.RegistrySecretName, map[string]string{
			"username": d.bundle.Username,
			"password": d.bundle.Password,
		}); err != nil {
			return err
		}
	}
	if d.bundle.HasCA() {
		ca, err := d.bundle.ReadCA()
		if err != nil {
			return err
		}
		if err := d.nested.EnsureConfigMap(ctx, common.CattleNamespace, credentials.CAConfigMapName, map[string]string{
			"cacerts.pem": string(ca),
		}); err != nil {
			return err
		}
	}
	return nil
}
