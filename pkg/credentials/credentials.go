// Package credentials derives every downstream artifact that optional
// registry/CA material feeds into: helm auth flags, the pull-secret and CA
// configmap references inside manifests, and the application-level registry
// setting. Derivation is a pure function of the bundle; the referenced
// secret and configmap are created by explicit orchestrator steps before
// any manifest mentioning them is applied.
package credentials

import (
	"os"

	"github.com/pkg/errors"

	"github.com/cnrancher/autorancher/pkg/template"
)

const (
	// RegistrySecretName is the pull secret created in the target namespace
	// when registry auth is configured.
	RegistrySecretName = "rancher-registry-auth"
	// CAConfigMapName holds the private CA bundle when one is configured.
	CAConfigMapName = "rancher-private-ca"

	// Placeholder tokens owned by each propagation target.
	TokenRegistrySecretRef = "__REGISTRY_SECRET_REF__"
	TokenCAConfigMapRef    = "__CA_CONFIGMAP_REF__"
	TokenSystemRegistry    = "__SYSTEM_REGISTRY__"
)

// Bundle carries the optional credential material collected at startup.
// All fields may be empty; Validate enforces the cross-field rules.
type Bundle struct {
	Username string
	Password string
	CAFile   string
	Registry string
}

// Validate checks the bundle invariants: username and password only make
// sense as a pair, and a configured CA file must be readable.
func (b *Bundle) Validate() error {
	if (b.Username == "") != (b.Password == "") {
		return errors.New("registry username and password must be set together")
	}
	if b.CAFile != "" {
		f, err := os.Open(b.CAFile)
		if err != nil {
			return errors.Wrapf(err, "CA file %s is not readable", b.CAFile)
		}
		_ = f.Close()
	}
	return nil
}

// HasAuth reports whether registry authentication is configured.
func (b *Bundle) HasAuth() bool {
	return b.Username != "" && b.Password != ""
}

// HasCA reports whether a private CA bundle is configured.
func (b *Bundle) HasCA() bool {
	return b.CAFile != ""
}

// ReadCA returns the CA bundle content for the configmap-creating step.
func (b *Bundle) ReadCA() ([]byte, error) {
	return os.ReadFile(b.CAFile)
}

// TargetKind enumerates where credential material can be propagated to.
type TargetKind string

const (
	// TargetAuthFlags is the helm repo authentication flag list.
	TargetAuthFlags TargetKind = "command-line-auth-flags"
	// TargetRegistrySecret references the in-cluster pull secret.
	TargetRegistrySecret TargetKind = "in-cluster-secret-reference"
	// TargetCAConfigMap references the in-cluster CA bundle configmap.
	TargetCAConfigMap TargetKind = "in-cluster-configmap-reference"
	// TargetRegistrySetting is the application-level default registry.
	TargetRegistrySetting TargetKind = "application-level-registry-setting"
)

// Fragment is the derived artifact for one target: either a flag list or a
// placeholder resolution for the target's token.
type Fragment struct {
	Flags   []string
	Context template.Context
}

// Propagate builds the fragment for each requested target. Targets whose
// credential fields are unset get the delete resolution for their token, so
// the corresponding manifest lines vanish on render.
func Propagate(bundle *Bundle, targets ...TargetKind) map[TargetKind]Fragment {
	fragments := make(map[TargetKind]Fragment, len(targets))
	for _, target := range targets {
		switch target {
		case TargetAuthFlags:
			fragments[target] = Fragment{Flags: authFlags(bundle)}
		case TargetRegistrySecret:
			fragments[target] = tokenFragment(TokenRegistrySecretRef, bundle.HasAuth(),
				"imagePullSecrets:\n  - name: "+RegistrySecretName)
		case TargetCAConfigMap:
			fragments[target] = tokenFragment(TokenCAConfigMapRef, bundle.HasCA(),
				"customCAConfigMap: "+CAConfigMapName)
		case TargetRegistrySetting:
			fragments[target] = tokenFragment(TokenSystemRegistry, bundle.Registry != "", bundle.Registry)
		}
	}
	return fragments
}

// MergedContext flattens the placeholder fragments of all targets into one
// template context, ignoring flag-list targets.
func MergedContext(fragments map[TargetKind]Fragment) template.Context {
	merged := template.Context{}
	for _, fragment := range fragments {
		for token, resolution := range fragment.Context {
			merged[token] = resolution
		}
	}
	return merged
}

func authFlags(bundle *Bundle) []string {
	flags := []string{}
	if bundle.HasAuth() {
		flags = append(flags, "--username", bundle.Username, "--password", bundle.Password)
	}
	if bundle.HasCA() {
		flags = append(flags, "--ca-file", bundle.CAFile)
	}
	return flags
}

func tokenFragment(token string, set bool, block string) Fragment {
	if !set {
		return Fragment{Context: template.Context{token: template.Delete()}}
	}
	return Fragment{Context: template.Context{token: template.Replace(block)}}
}
