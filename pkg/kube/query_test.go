package kube

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	k8sfake "k8s.io/client-go/kubernetes/fake"
)

func typedClient(objects ...runtime.Object) *Client {
	return &Client{KubeClient: k8sfake.NewSimpleClientset(objects...)}
}

// dynamicClient wires the dynamic fake with a mapper that knows the k3k
// Cluster CRD, enough for Get/GetField/Exists.
func dynamicClient(objects ...runtime.Object) *Client {
	mapper := meta.NewDefaultRESTMapper(nil)
	mapper.Add(schema.GroupVersionKind{Group: "k3k.io", Version: "v1alpha1", Kind: "Cluster"}, meta.RESTScopeNamespace)
	dynamic := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(),
		map[schema.GroupVersionResource]string{
			{Group: "k3k.io", Version: "v1alpha1", Resource: "clusters"}: "ClusterList",
		}, objects...)
	return &Client{Dynamic: dynamic, mapper: mapper}
}

func deployment(name string, replicas *int32, available int32, conditions ...appsv1.DeploymentCondition) *appsv1.Deployment {
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "cattle-system"},
		Spec:       appsv1.DeploymentSpec{Replicas: replicas},
		Status: appsv1.DeploymentStatus{
			AvailableReplicas: available,
			Conditions:        conditions,
		},
	}
}

func int32Ptr(i int32) *int32 {
	return &i
}

func TestDeploymentStateReady(t *testing.T) {
	c := typedClient(deployment("rancher", int32Ptr(3), 3))
	state, err := c.DeploymentState(context.Background(), "cattle-system", "rancher")
	assert.Nil(t, err)
	assert.Equal(t, "Ready", state)
}

func TestDeploymentStateNilReplicasDefaultsToOne(t *testing.T) {
	c := typedClient(deployment("rancher", nil, 1))
	state, err := c.DeploymentState(context.Background(), "cattle-system", "rancher")
	assert.Nil(t, err)
	assert.Equal(t, "Ready", state)
}

func TestDeploymentStateNotYetAvailable(t *testing.T) {
	c := typedClient(deployment("rancher", int32Ptr(3), 1))
	state, err := c.DeploymentState(context.Background(), "cattle-system", "rancher")
	assert.Nil(t, err)
	assert.Equal(t, "1/3 replicas available", state)
}

func TestDeploymentStateReplicaFailure(t *testing.T) {
	c := typedClient(deployment("rancher", int32Ptr(1), 0, appsv1.DeploymentCondition{
		Type:    appsv1.DeploymentReplicaFailure,
		Status:  corev1.ConditionTrue,
		Message: "pods \"rancher-0\" is forbidden: exceeded quota",
	}))
	state, err := c.DeploymentState(context.Background(), "cattle-system", "rancher")
	assert.Nil(t, err)
	assert.Equal(t, "Error: pods \"rancher-0\" is forbidden: exceeded quota", state)
}

func TestDeploymentStateAbsentIsError(t *testing.T) {
	c := typedClient()
	_, err := c.DeploymentState(context.Background(), "cattle-system", "rancher")
	assert.Error(t, err)
}

func TestNodesReady(t *testing.T) {
	node := func(name string, status corev1.ConditionStatus) *corev1.Node {
		return &corev1.Node{
			ObjectMeta: metav1.ObjectMeta{Name: name},
			Status: corev1.NodeStatus{Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: status},
			}},
		}
	}

	ready, err := typedClient().NodesReady(context.Background())
	assert.Nil(t, err)
	assert.False(t, ready, "empty cluster is not ready")

	ready, err = typedClient(node("a", corev1.ConditionTrue), node("b", corev1.ConditionFalse)).NodesReady(context.Background())
	assert.Nil(t, err)
	assert.False(t, ready, "one unready node fails the check")

	ready, err = typedClient(node("a", corev1.ConditionTrue), node("b", corev1.ConditionTrue)).NodesReady(context.Background())
	assert.Nil(t, err)
	assert.True(t, ready)
}

func TestGetSecretAbsentReturnsNil(t *testing.T) {
	secret, err := typedClient().GetSecret(context.Background(), "rancher-system", "rancher-kubeconfig")
	assert.Nil(t, err)
	assert.Nil(t, secret)
}

func TestGetConfigMapAbsentReturnsNil(t *testing.T) {
	configMap, err := typedClient().GetConfigMap(context.Background(), "rancher-system", "rancher-private-ca")
	assert.Nil(t, err)
	assert.Nil(t, configMap)
}

func clusterObject(phase string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "k3k.io/v1alpha1",
		"kind":       "Cluster",
		"metadata": map[string]interface{}{
			"name":      "rancher",
			"namespace": "rancher-system",
		},
	}}
	if phase != "" {
		obj.Object["status"] = map[string]interface{}{"phase": phase}
	}
	return obj
}

func clusterRef() ResourceRef {
	return ResourceRef{APIVersion: "k3k.io/v1alpha1", Kind: "Cluster", Namespace: "rancher-system", Name: "rancher"}
}

func TestGetFieldReturnsValue(t *testing.T) {
	c := dynamicClient(clusterObject("Provisioning"))
	value, err := c.GetField(context.Background(), clusterRef(), "status.phase")
	assert.Nil(t, err)
	assert.Equal(t, "Provisioning", value)
}

func TestGetFieldUnsetFieldIsError(t *testing.T) {
	// pollers rely on unset fields surfacing as errors, which count as
	// "not yet" and are retried
	c := dynamicClient(clusterObject(""))
	_, err := c.GetField(context.Background(), clusterRef(), "status.phase")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "has no field status.phase yet")
}

func TestExists(t *testing.T) {
	c := dynamicClient(clusterObject("Ready"))
	exists, err := c.Exists(context.Background(), clusterRef())
	assert.Nil(t, err)
	assert.True(t, exists)

	exists, err = dynamicClient().Exists(context.Background(), clusterRef())
	assert.Nil(t, err)
	assert.False(t, exists)
}
