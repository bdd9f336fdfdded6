package deploy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cnrancher/autorancher/pkg/common"
	"github.com/cnrancher/autorancher/pkg/credentials"
)

func testDeployer(cfg *common.Config) *Deployer {
	return &Deployer{cfg: cfg, bundle: cfg.CredentialBundle()}
}

func baseConfig() *common.Config {
	return &common.Config{
		ClusterName:       "rancher",
		ClusterNamespace:  "rancher-system",
		Servers:           1,
		PVCSize:           "10Gi",
		Hostname:          "rancher.example.com",
		BootstrapPassword: "admin-password",
		Replicas:          1,
	}
}

func TestClusterManifestOptionalLinesDropped(t *testing.T) {
	d := testDeployer(baseConfig())
	manifest, err := d.clusterManifest()
	assert.Nil(t, err)
	assert.NotContains(t, manifest, "version:")
	assert.NotContains(t, manifest, "storageClassName:")
	assert.Contains(t, manifest, "name: rancher\n")
	assert.Contains(t, manifest, "namespace: rancher-system")
	assert.Contains(t, manifest, "storageRequestSize: 10Gi")
	assert.Contains(t, manifest, "- rancher.example.com")
}

func TestClusterManifestWithVersionAndStorageClass(t *testing.T) {
	cfg := baseConfig()
	cfg.K3sVersion = "v1.28.5+k3s1"
	cfg.StorageClass = "harvester-longhorn"
	manifest, err := testDeployer(cfg).clusterManifest()
	assert.Nil(t, err)
	assert.Contains(t, manifest, "version: v1.28.5+k3s1")
	assert.Contains(t, manifest, "storageClassName: harvester-longhorn")
}

func TestRancherValuesWithoutCredentials(t *testing.T) {
	values, err := testDeployer(baseConfig()).rancherValues()
	assert.Nil(t, err)
	assert.Contains(t, values, "hostname: rancher.example.com")
	assert.Contains(t, values, "bootstrapPassword: admin-password")
	assert.NotContains(t, values, "systemDefaultRegistry")
	assert.NotContains(t, values, "imagePullSecrets")
	assert.NotContains(t, values, "customCAConfigMap")
	assert.NotContains(t, values, "__")
}

func TestRancherValuesWithRegistry(t *testing.T) {
	cfg := baseConfig()
	cfg.RegistryUsername = "u"
	cfg.RegistryPassword = "p"
	cfg.Registry = "registry.example.com:5000"
	values, err := testDeployer(cfg).rancherValues()
	assert.Nil(t, err)
	assert.Contains(t, values, "systemDefaultRegistry: registry.example.com:5000")
	assert.Contains(t, values, "imagePullSecrets:")
	assert.Contains(t, values, "- name: "+credentials.RegistrySecretName)
	// the expanded block keeps top level indentation
	for _, line := range strings.Split(values, "\n") {
		if strings.Contains(line, "imagePullSecrets:") {
			assert.False(t, strings.HasPrefix(line, " "))
		}
	}
}

func TestStepsSkipCredentialStepsWithoutBundle(t *testing.T) {
	d := testDeployer(baseConfig())
	names := []string{}
	for _, step := range d.steps() {
		names = append(names, step.Name)
	}
	assert.NotContains(t, names, "create registry auth secret")
	assert.NotContains(t, names, "create private CA configmap")

	cfg := baseConfig()
	cfg.RegistryUsername = "u"
	cfg.RegistryPassword = "p"
	names = names[:0]
	for _, step := range testDeployer(cfg).steps() {
		names = append(names, step.Name)
	}
	assert.Contains(t, names, "create registry auth secret")
}
