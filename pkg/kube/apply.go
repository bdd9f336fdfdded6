package kube

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/yaml"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const fieldManager = "autorancher"

// Apply server-side applies every document in a rendered multi-document
// manifest. Re-applying identical content is a no-op on the server side,
// which is what makes re-running a finished deployment safe.
func (c *Client) Apply(ctx context.Context, manifest string) error {
	for _, doc := range splitDocuments(manifest) {
		obj := &unstructured.Unstructured{}
		if err := yaml.Unmarshal([]byte(doc), &obj.Object); err != nil {
			return errors.Wrap(err, "failed to decode manifest document")
		}
		if len(obj.Object) == 0 {
			continue
		}
		if err := c.applyObject(ctx, obj); err != nil {
			return errors.Wrapf(err, "failed to apply %s %s", obj.GetKind(), obj.GetName())
		}
	}
	return nil
}

func (c *Client) applyObject(ctx context.Context, obj *unstructured.Unstructured) error {
	resource, err := c.resourceFor(obj.GroupVersionKind(), obj.GetNamespace())
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(obj.Object)
	if err != nil {
		return err
	}
	_, err = resource.Patch(ctx, obj.GetName(), types.ApplyPatchType, data, metav1.PatchOptions{
		FieldManager: fieldManager,
		Force:        boolPtr(true),
	})
	return err
}

// Get fetches one resource as unstructured content.
func (c *Client) Get(ctx context.Context, ref ResourceRef) (*unstructured.Unstructured, error) {
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil {
		return nil, err
	}
	resource, err := c.resourceFor(gv.WithKind(ref.Kind), ref.Namespace)
	if err != nil {
		return nil, err
	}
	return resource.Get(ctx, ref.Name, metav1.GetOptions{})
}

func (c *Client) resourceFor(gvk schema.GroupVersionKind, namespace string) (dynamic.ResourceInterface, error) {
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, errors.Wrapf(err, "no resource mapping for %s", gvk)
	}
	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.Dynamic.Resource(mapping.Resource).Namespace(namespace), nil
	}
	return c.Dynamic.Resource(mapping.Resource), nil
}

func splitDocuments(manifest string) []string {
	docs := []string{}
	for _, doc := range strings.Split(manifest, "\n---") {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func boolPtr(b bool) *bool {
	return &b
}
