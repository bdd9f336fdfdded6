// Package kube wraps the two adapters the orchestrator needs from a
// Kubernetes-style control plane: applying rendered manifests and querying
// single status fields. Everything else about cluster semantics stays on
// the other side of this boundary.
package kube

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

type Client struct {
	RestConfig *rest.Config
	KubeClient kubernetes.Interface
	Dynamic    dynamic.Interface
	mapper     meta.RESTMapper
}

// NewClient builds a client from a kubeconfig file path or raw kubeconfig
// content. Content wins when both are given.
func NewClient(kubeconfigFile string, kubeconfigContent []byte) (*Client, error) {
	restConfig, err := getRestConfig(kubeconfigFile, kubeconfigContent)
	if err != nil {
		return nil, err
	}
	return NewClientFromRestConfig(restConfig)
}

func NewClientFromRestConfig(restConfig *rest.Config) (*Client, error) {
	kubeClient, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, err
	}
	return &Client{
		RestConfig: restConfig,
		KubeClient: kubeClient,
		Dynamic:    dynamicClient,
		mapper:     restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient)),
	}, nil
}

func getRestConfig(kubeconfigFile string, kubeconfigContent []byte) (*rest.Config, error) {
	if len(kubeconfigContent) > 0 {
		return clientcmd.RESTConfigFromKubeConfig(kubeconfigContent)
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigFile != "" {
		loadingRules.ExplicitPath = kubeconfigFile
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
}

// ResourceRef identifies one external resource for apply and query calls.
type ResourceRef struct {
	APIVersion string
	Kind       string
	Namespace  string
	Name       string
}

func (r ResourceRef) String() string {
	if r.Namespace == "" {
		return fmt.Sprintf("%s/%s", strings.ToLower(r.Kind), r.Name)
	}
	return fmt.Sprintf("%s/%s -n %s", strings.ToLower(r.Kind), r.Name, r.Namespace)
}

// InspectCommand returns the exact external command an operator should run
// to look at this resource next. Fatal step errors carry it verbatim.
func (r ResourceRef) InspectCommand() string {
	if r.Namespace == "" {
		return fmt.Sprintf("kubectl get %s %s", strings.ToLower(r.Kind), r.Name)
	}
	return fmt.Sprintf("kubectl -n %s get %s %s", r.Namespace, strings.ToLower(r.Kind), r.Name)
}
