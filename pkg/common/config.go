package common

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/cnrancher/autorancher/pkg/credentials"
)

// Config is built once at startup from the config file, AUTORANCHER_*
// environment variables and interactive prompts, and then passed into every
// component. Nothing below the command layer reads ambient process state.
type Config struct {
	// host cluster access
	KubeconfigFile string

	// nested cluster shape
	ClusterName      string
	ClusterNamespace string
	Servers          int
	K3sVersion       string
	StorageClass     string
	PVCSize          string

	// rancher installation
	Hostname          string
	BootstrapPassword string
	Replicas          int

	// chart sources
	K3kRepo            string
	K3kVersion         string
	CertManagerRepo    string
	CertManagerVersion string
	RancherRepo        string
	RancherVersion     string

	// optional credential material
	RegistryUsername string
	RegistryPassword string
	CAFile           string
	Registry         string

	// extra --set style chart value overrides
	ExtraValues []string

	// poll budget
	RetryAttempts int
	RetryDelay    time.Duration
}

// LoadConfig reads the optional config file and the environment into an
// immutable Config. Missing required values are reported by Validate (or
// collected by the deploy command's prompts first).
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("autorancher")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("cluster-name", "rancher")
	v.SetDefault("cluster-namespace", "rancher-system")
	v.SetDefault("servers", 1)
	v.SetDefault("pvc-size", "10Gi")
	v.SetDefault("replicas", 1)
	v.SetDefault("k3k-repo", DefaultK3kRepo)
	v.SetDefault("cert-manager-repo", DefaultCertManagerRepo)
	v.SetDefault("cert-manager-version", "v1.13.3")
	v.SetDefault("rancher-repo", DefaultRancherRepo)
	v.SetDefault("retry", RetryAttempts)
	v.SetDefault("retry-delay", RetryDelay)

	// the config file is optional, env alone is enough for automation
	v.SetConfigFile(filepath.Join(CfgPath, ConfigFile))
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	return &Config{
		KubeconfigFile:     v.GetString("kubeconfig"),
		ClusterName:        v.GetString("cluster-name"),
		ClusterNamespace:   v.GetString("cluster-namespace"),
		Servers:            v.GetInt("servers"),
		K3sVersion:         v.GetString("k3s-version"),
		StorageClass:       v.GetString("storage-class"),
		PVCSize:            v.GetString("pvc-size"),
		Hostname:           v.GetString("hostname"),
		BootstrapPassword:  v.GetString("bootstrap-password"),
		Replicas:           v.GetInt("replicas"),
		K3kRepo:            v.GetString("k3k-repo"),
		K3kVersion:         v.GetString("k3k-version"),
		CertManagerRepo:    v.GetString("cert-manager-repo"),
		CertManagerVersion: v.GetString("cert-manager-version"),
		RancherRepo:        v.GetString("rancher-repo"),
		RancherVersion:     v.GetString("rancher-version"),
		RegistryUsername:   v.GetString("registry-username"),
		RegistryPassword:   v.GetString("registry-password"),
		CAFile:             v.GetString("registry-ca-file"),
		Registry:           v.GetString("registry"),
		ExtraValues:        v.GetStringSlice("set"),
		RetryAttempts:      v.GetInt("retry"),
		RetryDelay:         v.GetDuration("retry-delay"),
	}, nil
}

// Validate checks the cross-field rules that prompts and env cannot enforce.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("rancher hostname is required, set AUTORANCHER_HOSTNAME or answer the prompt")
	}
	if c.BootstrapPassword == "" {
		return errors.New("rancher bootstrap password is required, set AUTORANCHER_BOOTSTRAP_PASSWORD or answer the prompt")
	}
	if c.Servers < 1 {
		return errors.New("nested cluster needs at least one server")
	}
	return c.CredentialBundle().Validate()
}

// CredentialBundle returns the optional credential material as a bundle.
func (c *Config) CredentialBundle() *credentials.Bundle {
	return &credentials.Bundle{
		Username: c.RegistryUsername,
		Password: c.RegistryPassword,
		CAFile:   c.CAFile,
		Registry: c.Registry,
	}
}

// NestedKubeconfigPath is where the nested cluster kubeconfig is written.
func (c *Config) NestedKubeconfigPath() string {
	return filepath.Join(CfgPath, c.ClusterName, "kubeconfig")
}
