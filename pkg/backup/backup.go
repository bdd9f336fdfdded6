package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/credentials"
	"github.com/cnrancher/autorancher/pkg/kube"
	"github.com/cnrancher/autorancher/pkg/poll"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

// Target is the slice of the cluster client the coordinator needs.
// *kube.Client satisfies it.
type Target interface {
	Get(ctx context.Context, ref kube.ResourceRef) (*unstructured.Unstructured, error)
	Apply(ctx context.Context, manifest string) error
	Exists(ctx context.Context, ref kube.ResourceRef) (bool, error)
	NodesReady(ctx context.Context) (bool, error)
	DeploymentState(ctx context.Context, namespace, name string) (string, error)
}

// Item names one resource to capture into the backup directory.
type Item struct {
	Name string
	Ref  kube.ResourceRef
	Path string
}

// OperatorJob describes a rancher-backup operator run. Zero value means
// no operator job.
type OperatorJob struct {
	// Name is the Backup or Restore object name submitted to the operator.
	Name string
	// ResourceSet selects which resources the operator includes.
	ResourceSet string
	// CredentialSecret holds the storage location credentials the operator
	// expects, in the operator's namespace.
	CredentialSecret string
	// Filename is the backup artifact to restore from. Restore only.
	Filename string
}

// Manifest lists what a backup run captures.
type Manifest struct {
	Items    []Item
	Operator *OperatorJob
}

// DefaultManifest captures the resources a deployment creates on the host
// cluster. Credential resources are included only when the configuration
// carries them.
func DefaultManifest(cfg *common.Config) *Manifest {
	m := &Manifest{
		Items: []Item{
			{
				Name: "nested cluster",
				Ref: kube.ResourceRef{
					APIVersion: "k3k.io/v1alpha1",
					Kind:       "Cluster",
					Namespace:  cfg.ClusterNamespace,
					Name:       cfg.ClusterName,
				},
				Path: "cluster.yaml",
			},
			{
				Name: "nested kubeconfig secret",
				Ref: kube.ResourceRef{
					APIVersion: "v1",
					Kind:       "Secret",
					Namespace:  cfg.ClusterNamespace,
					Name:       fmt.Sprintf("%s-kubeconfig", cfg.ClusterName),
				},
				Path: "kubeconfig-secret.yaml",
			},
		},
	}
	bundle := cfg.CredentialBundle()
	if bundle.HasAuth() {
		m.Items = append(m.Items, Item{
			Name: "registry auth secret",
			Ref: kube.ResourceRef{
				APIVersion: "v1",
				Kind:       "Secret",
				Namespace:  cfg.ClusterNamespace,
				Name:       credentials.RegistrySecretName,
			},
			Path: "registry-secret.yaml",
		})
	}
	if bundle.HasCA() {
		m.Items = append(m.Items, Item{
			Name: "private CA configmap",
			Ref: kube.ResourceRef{
				APIVersion: "v1",
				Kind:       "ConfigMap",
				Namespace:  cfg.ClusterNamespace,
				Name:       credentials.CAConfigMapName,
			},
			Path: "ca-configmap.yaml",
		})
	}
	return m
}

// Coordinator runs backup and restore operations against a target cluster.
type Coordinator struct {
	Logger *logrus.Logger
	// Host is the cluster holding the captured resources.
	Host Target
	// Nested is the inner cluster running the operator. May equal Host in
	// tests.
	Nested Target
	// Attempts and Delay bound operator job completion waits.
	Attempts int
	Delay    time.Duration
}

func NewCoordinator(logger *logrus.Logger, host, nested Target, attempts int, delay time.Duration) *Coordinator {
	return &Coordinator{
		Logger:   logger,
		Host:     host,
		Nested:   nested,
		Attempts: attempts,
		Delay:    delay,
	}
}

// Backup captures every manifest item into outDir and, when an operator
// job is present, submits it and waits for the produced artifact. Item
// failures become report warnings, they never abort the run.
func (c *Coordinator) Backup(ctx context.Context, manifest *Manifest, outDir string) (*Report, error) {
	ready, err := c.Host.NodesReady(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[backup] calling preflight error: checking cluster nodes")
	}
	if !ready {
		return nil, errors.New("[backup] calling preflight error: cluster has no ready node")
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "[backup] failed to create output directory %s", outDir)
	}

	report := &Report{}
	for _, item := range manifest.Items {
		if err := c.captureItem(ctx, item, outDir); err != nil {
			c.Logger.Warnf("[backup] skipped %s: %v", item.Name, err)
			report.add(item.Name, StatusWarning, err.Error())
			continue
		}
		c.Logger.Infof("[backup] captured %s to %s", item.Name, item.Path)
		report.add(item.Name, StatusCaptured, item.Path)
	}

	if manifest.Operator != nil {
		c.runOperatorBackup(ctx, manifest.Operator, report)
	}
	return report, nil
}

func (c *Coordinator) captureItem(ctx context.Context, item Item, outDir string) error {
	obj, err := c.Host.Get(ctx, item.Ref)
	if err != nil {
		return err
	}
	sanitize(obj)
	content, err := yaml.Marshal(obj.Object)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", item.Ref)
	}
	return os.WriteFile(filepath.Join(outDir, item.Path), content, 0600)
}

// sanitize strips the server-populated fields that would make a captured
// object fail or churn on reapply.
func sanitize(obj *unstructured.Unstructured) {
	unstructured.RemoveNestedField(obj.Object, "status")
	for _, field := range []string{
		"managedFields",
		"resourceVersion",
		"uid",
		"generation",
		"creationTimestamp",
		"ownerReferences",
	} {
		unstructured.RemoveNestedField(obj.Object, "metadata", field)
	}
	unstructured.RemoveNestedField(obj.Object, "metadata", "annotations",
		"kubectl.kubernetes.io/last-applied-configuration")
}

func (c *Coordinator) runOperatorBackup(ctx context.Context, job *OperatorJob, report *Report) {
	manifest, err := backupManifest(job)
	if err != nil {
		report.add("operator backup", StatusWarning, err.Error())
		return
	}
	if err := c.Nested.Apply(ctx, manifest); err != nil {
		c.Logger.Warnf("[backup] operator backup %s not submitted: %v", job.Name, err)
		report.add("operator backup", StatusWarning, err.Error())
		return
	}
	c.Logger.Infof("[backup] waiting for operator backup %s to complete", job.Name)

	ref := backupRef(job.Name)
	spec := c.pollSpec(fmt.Sprintf("operator backup %s", job.Name))
	result := poll.WaitFor(ctx, spec, func(ctx context.Context) (string, error) {
		return c.jobState(ctx, ref)
	})
	if result.Outcome != poll.Success {
		c.Logger.Warnf("[backup] %v", result.Err(spec))
		report.add("operator backup", StatusWarning, result.Err(spec).Error())
		return
	}
	artifact, err := c.jobField(ctx, ref, "status", "filename")
	if err != nil {
		report.add("operator backup", StatusWarning, err.Error())
		return
	}
	report.Artifact = artifact
	report.add("operator backup", StatusCaptured, artifact)
}

func (c *Coordinator) pollSpec(name string) *poll.Spec {
	return &poll.Spec{
		Name:        name,
		Success:     []string{"Ready"},
		Failure:     []string{"Error", "Failed"},
		MaxAttempts: c.Attempts,
		Delay:       c.Delay,
	}
}

// jobState reduces an operator object's conditions to a single line the
// poller can match on.
func (c *Coordinator) jobState(ctx context.Context, ref kube.ResourceRef) (string, error) {
	obj, err := c.Nested.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return "InProgress", nil
	}
	for _, raw := range conditions {
		condition, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		conditionType, _ := condition["type"].(string)
		status, _ := condition["status"].(string)
		message, _ := condition["message"].(string)
		if conditionType == "Ready" && status == "True" {
			return "Ready", nil
		}
		if conditionType == "Error" && status == "True" {
			return fmt.Sprintf("Error: %s", message), nil
		}
	}
	return "InProgress", nil
}

func (c *Coordinator) jobField(ctx context.Context, ref kube.ResourceRef, fields ...string) (string, error) {
	obj, err := c.Nested.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	value, found, err := unstructured.NestedString(obj.Object, fields...)
	if err != nil || !found {
		return "", errors.Errorf("%s has no %v field", ref, fields)
	}
	return value, nil
}

func backupRef(name string) kube.ResourceRef {
	return kube.ResourceRef{
		APIVersion: "resources.cattle.io/v1",
		Kind:       "Backup",
		Name:       name,
	}
}
