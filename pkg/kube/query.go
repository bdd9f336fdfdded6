package kube

import (
	"context"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// GetField returns the current value of one field of an external resource,
// addressed by a dot separated path such as "status.phase". Not-found and
// unset fields are returned as errors so pollers treat them as "not yet".
func (c *Client) GetField(ctx context.Context, ref ResourceRef, fieldPath string) (string, error) {
	obj, err := c.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	fields := strings.Split(fieldPath, ".")
	value, found, err := unstructured.NestedFieldNoCopy(obj.Object, fields...)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%s has no field %s yet", ref, fieldPath)
	}
	return fmt.Sprintf("%v", value), nil
}

// Exists reports whether the referenced resource is present.
func (c *Client) Exists(ctx context.Context, ref ResourceRef) (bool, error) {
	if _, err := c.Get(ctx, ref); err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NodesReady reports whether the cluster is reachable and every node has a
// Ready condition set to true.
func (c *Client) NodesReady(ctx context.Context) (bool, error) {
	nodes, err := c.KubeClient.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, err
	}
	if len(nodes.Items) == 0 {
		return false, nil
	}
	for _, node := range nodes.Items {
		ready := false
		for _, condition := range node.Status.Conditions {
			if condition.Type == corev1.NodeReady && condition.Status == corev1.ConditionTrue {
				ready = true
			}
		}
		if !ready {
			return false, nil
		}
	}
	return true, nil
}

// DeploymentState summarizes a deployment's availability as a single
// observable string: "Ready" once the desired replicas are available,
// otherwise a progress description. Pollers match on it directly.
func (c *Client) DeploymentState(ctx context.Context, namespace, name string) (string, error) {
	deployment, err := c.KubeClient.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	if deployment.Status.AvailableReplicas >= desired {
		return "Ready", nil
	}
	for _, condition := range deployment.Status.Conditions {
		if condition.Type == appsv1.DeploymentReplicaFailure && condition.Status == corev1.ConditionTrue {
			return fmt.Sprintf("Error: %s", condition.Message), nil
		}
	}
	return fmt.Sprintf("%d/%d replicas available", deployment.Status.AvailableReplicas, desired), nil
}

// GetConfigMap fetches a configmap, returning nil without error when it is
// absent.
func (c *Client) GetConfigMap(ctx context.Context, namespace, name string) (*corev1.ConfigMap, error) {
	configMap, err := c.KubeClient.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return configMap, nil
}

// GetSecret fetches a secret, returning nil without error when it is absent.
func (c *Client) GetSecret(ctx context.Context, namespace, name string) (*corev1.Secret, error) {
	secret, err := c.KubeClient.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return secret, nil
}
