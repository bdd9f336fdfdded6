package deploy

import (
	"strconv"

	"github.com/cnrancher/autorancher/pkg/credentials"
	"github.com/cnrancher/autorancher/pkg/template"
)

// clusterTmpl is the k3k Cluster custom resource creating the nested
// cluster on the host. Optional lines carry their own token and disappear
// when the matching setting is unset.
const clusterTmpl = `apiVersion: k3k.io/v1alpha1
kind: Cluster
metadata:
  name: __CLUSTER_NAME__
  namespace: __CLUSTER_NAMESPACE__
spec:
  servers: __SERVERS__
  agents: 0
  version: __K3S_VERSION__
  tlsSANs:
    - __HOSTNAME__
  persistence:
    type: dynamic
    storageClassName: __STORAGE_CLASS__
    storageRequestSize: __PVC_SIZE__
`

// rancherValuesTmpl is the values document for the Rancher chart inside the
// nested cluster. The credential propagator supplies the resolutions for
// the registry and CA tokens.
const rancherValuesTmpl = `hostname: __HOSTNAME__
bootstrapPassword: __BOOTSTRAP_PASSWORD__
replicas: __REPLICAS__
ingress:
  tls:
    source: rancher
global:
  cattle:
    psp:
      enabled: false
systemDefaultRegistry: __SYSTEM_REGISTRY__
__REGISTRY_SECRET_REF__
__CA_CONFIGMAP_REF__
`

func (d *Deployer) clusterManifest() (string, error) {
	context := template.Context{
		"__CLUSTER_NAME__":      template.Replace(d.cfg.ClusterName),
		"__CLUSTER_NAMESPACE__": template.Replace(d.cfg.ClusterNamespace),
		"__SERVERS__":           template.Replace(strconv.Itoa(d.cfg.Servers)),
		"__HOSTNAME__":          template.Replace(d.cfg.Hostname),
		"__PVC_SIZE__":          template.Replace(d.cfg.PVCSize),
	}
	if d.cfg.K3sVersion == "" {
		context["__K3S_VERSION__"] = template.Delete()
	} else {
		context["__K3S_VERSION__"] = template.Replace(d.cfg.K3sVersion)
	}
	if d.cfg.StorageClass == "" {
		context["__STORAGE_CLASS__"] = template.Delete()
	} else {
		context["__STORAGE_CLASS__"] = template.Replace(d.cfg.StorageClass)
	}
	return template.RenderStrict(clusterTmpl, context)
}

func (d *Deployer) rancherValues() (string, error) {
	fragments := credentials.Propagate(d.bundle,
		credentials.TargetRegistrySecret,
		credentials.TargetCAConfigMap,
		credentials.TargetRegistrySetting,
	)
	context := template.Context{
		"__HOSTNAME__":           template.Replace(d.cfg.Hostname),
		"__BOOTSTRAP_PASSWORD__": template.Replace(d.cfg.BootstrapPassword),
		"__REPLICAS__":           template.Replace(strconv.Itoa(d.cfg.Replicas)),
	}.Merge(credentials.MergedContext(fragments))
	return template.RenderStrict(rancherValuesTmpl, context)
}
