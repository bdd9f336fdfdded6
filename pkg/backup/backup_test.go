package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cnrancher/autorancher/pkg/kube"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"sigs.k8s.io/yaml"
)

type fakeTarget struct {
	objects     map[string]*unstructured.Unstructured
	applied     []string
	applyErr    error
	ready       bool
	readyErr    error
	exists      map[string]bool
	deployState string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		objects: map[string]*unstructured.Unstructured{},
		exists:  map[string]bool{},
		ready:   true,
	}
}

func (f *fakeTarget) Get(_ context.Context, ref kube.ResourceRef) (*unstructured.Unstructured, error) {
	obj, ok := f.objects[ref.String()]
	if !ok {
		return nil, errNotFound(ref)
	}
	return obj.DeepCopy(), nil
}

func (f *fakeTarget) Apply(_ context.Context, manifest string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, manifest)
	return nil
}

func (f *fakeTarget) Exists(_ context.Context, ref kube.ResourceRef) (bool, error) {
	return f.exists[ref.String()], nil
}

func (f *fakeTarget) NodesReady(_ context.Context) (bool, error) {
	return f.ready, f.readyErr
}

func (f *fakeTarget) DeploymentState(_ context.Context, _, _ string) (string, error) {
	return f.deployState, nil
}

type refError struct{ message string }

func (e refError) Error() string { return e.message }

func errNotFound(ref kube.ResourceRef) error {
	return refError{message: ref.String() + " not found"}
}

func testCoordinator(host, nested *fakeTarget) *Coordinator {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	return NewCoordinator(logger, host, nested, 3, time.Millisecond)
}

func secretObject(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Secret",
		"metadata": map[string]interface{}{
			"name":            name,
			"namespace":       namespace,
			"resourceVersion": "42",
			"uid":             "5f2c",
			"managedFields":   []interface{}{map[string]interface{}{"manager": "kube-controller-manager"}},
		},
		"data": map[string]interface{}{"kubeconfig.yaml": "YXBpVmVyc2lvbg=="},
	}}
}

func TestBackupCapturesItems(t *testing.T) {
	host := newFakeTarget()
	secret := secretObject("rancher-system", "rancher-kubeconfig")
	host.objects[kube.ResourceRef{Kind: "Secret", Namespace: "rancher-system", Name: "rancher-kubeconfig"}.String()] = secret

	outDir := t.TempDir()
	manifest := &Manifest{Items: []Item{
		{
			Name: "nested kubeconfig secret",
			Ref:  kube.ResourceRef{APIVersion: "v1", Kind: "Secret", Namespace: "rancher-system", Name: "rancher-kubeconfig"},
			Path: "kubeconfig-secret.yaml",
		},
	}}

	report, err := testCoordinator(host, host).Backup(context.Background(), manifest, outDir)
	assert.NoError(t, err)
	assert.Len(t, report.Items, 1)
	assert.Equal(t, StatusCaptured, report.Items[0].Status)
	assert.Empty(t, report.Warnings())

	content, err := os.ReadFile(filepath.Join(outDir, "kubeconfig-secret.yaml"))
	assert.NoError(t, err)

	captured := map[string]interface{}{}
	assert.NoError(t, yaml.Unmarshal(content, &captured))
	metadata := captured["metadata"].(map[string]interface{})
	assert.Equal(t, "rancher-kubeconfig", metadata["name"])
	assert.NotContains(t, metadata, "resourceVersion")
	assert.NotContains(t, metadata, "uid")
	assert.NotContains(t, metadata, "managedFields")
}

func TestBackupMissingItemBecomesWarning(t *testing.T) {
	host := newFakeTarget()
	manifest := &Manifest{Items: []Item{
		{
			Name: "registry auth secret",
			Ref:  kube.ResourceRef{APIVersion: "v1", Kind: "Secret", Namespace: "rancher-system", Name: "rancher-registry-auth"},
			Path: "registry-secret.yaml",
		},
	}}

	outDir := t.TempDir()
	report, err := testCoordinator(host, host).Backup(context.Background(), manifest, outDir)
	assert.NoError(t, err)
	assert.Len(t, report.Warnings(), 1)
	assert.Equal(t, "registry auth secret", report.Warnings()[0].Name)
	_, statErr := os.Stat(filepath.Join(outDir, "registry-secret.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBackupPreflightFailsOnUnreadyCluster(t *testing.T) {
	host := newFakeTarget()
	host.ready = false

	_, err := testCoordinator(host, host).Backup(context.Background(), &Manifest{}, t.TempDir())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "calling preflight error")
}

func TestBackupOperatorJobCompletes(t *testing.T) {
	host := newFakeTarget()
	nested := newFakeTarget()
	job := &OperatorJob{Name: "pre-upgrade", ResourceSet: "rancher-resource-set"}
	nested.objects[backupRef(job.Name).String()] = &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "resources.cattle.io/v1",
		"kind":       "Backup",
		"metadata":   map[string]interface{}{"name": job.Name},
		"status": map[string]interface{}{
			"filename": "pre-upgrade-2026-08-28.tar.gz",
			"conditions": []interface{}{
				map[string]interface{}{"type": "Ready", "status": "True"},
			},
		},
	}}

	report, err := testCoordinator(host, nested).Backup(context.Background(), &Manifest{Operator: job}, t.TempDir())
	assert.NoError(t, err)
	assert.Equal(t, "pre-upgrade-2026-08-28.tar.gz", report.Artifact)
	assert.Empty(t, report.Warnings())
	assert.Len(t, nested.applied, 1)
	assert.Contains(t, nested.applied[0], "kind: Backup")
	assert.Contains(t, nested.applied[0], "resourceSetName: rancher-resource-set")
}

func TestBackupOperatorTimeoutIsWarning(t *testing.T) {
	host := newFakeTarget()
	nested := newFakeTarget()
	job := &OperatorJob{Name: "stuck"}
	nested.objects[backupRef(job.Name).String()] = &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "resources.cattle.io/v1",
		"kind":       "Backup",
		"metadata":   map[string]interface{}{"name": job.Name},
	}}

	report, err := testCoordinator(host, nested).Backup(context.Background(), &Manifest{Operator: job}, t.TempDir())
	assert.NoError(t, err)
	assert.Len(t, report.Warnings(), 1)
	assert.Contains(t, report.Warnings()[0].Message, "timed out")
	assert.Empty(t, report.Artifact)
}

func TestJobStateReportsOperatorError(t *testing.T) {
	nested := newFakeTarget()
	ref := backupRef("broken")
	nested.objects[ref.String()] = &unstructured.Unstructured{Object: map[string]interface{}{
		"status": map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"type": "Error", "status": "True", "message": "s3 bucket unreachable"},
			},
		},
	}}

	state, err := testCoordinator(nested, nested).jobState(context.Background(), ref)
	assert.NoError(t, err)
	assert.Equal(t, "Error: s3 bucket unreachable", state)
}

func TestReportPrintRendersTable(t *testing.T) {
	report := &Report{}
	report.add("nested cluster", StatusCaptured, "cluster.yaml")
	report.add("registry auth secret", StatusWarning, "not found")

	var out strings.Builder
	report.Print(&out)
	assert.Contains(t, out.String(), "nested cluster")
	assert.Contains(t, out.String(), "Warning")
}
