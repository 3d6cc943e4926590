package k8sclient

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
)

// Client provides the cluster operations the orchestrator needs.
type Client interface {
	// Get returns a single object. An empty namespace addresses a
	// cluster-scoped resource.
	Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error)

	// List returns objects matching the label selector. An empty namespace
	// lists across all namespaces (or the cluster scope).
	List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error)

	// Patch applies a JSON merge patch to a single object.
	Patch(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, mergePatch []byte) error

	// Apply applies multi-document YAML using Server-Side Apply.
	Apply(ctx context.Context, manifests []byte) error

	// Watch opens a watch on objects matching the label selector.
	Watch(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (watch.Interface, error)
}

// Options configures a client.
type Options struct {
	// FieldManager identifies lhctl as the actor of server-side applies.
	FieldManager string

	// Namespace is used for namespaced manifest documents that carry none.
	Namespace string
}

// resettableMapper is a RESTMapper that can drop its discovery cache, so
// kinds from CRDs created earlier in the same apply become resolvable.
type resettableMapper interface {
	meta.RESTMapper
	Reset()
}

// client implements the Client interface using k8s.io/client-go.
type client struct {
	dynamicClient dynamic.Interface
	mapper        meta.RESTMapper
	opts          Options
}

// NewFromKubeconfig creates a Client using the standard kubeconfig loading
// rules. An empty path honours KUBECONFIG and ~/.kube/config; an empty
// context selects the current context.
func NewFromKubeconfig(kubeconfigPath, kubeContext string, opts Options) (Client, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		rules.ExplicitPath = kubeconfigPath
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}

	restConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create REST config from kubeconfig: %w", err)
	}

	return NewFromRESTConfig(restConfig, opts)
}

// NewFromRESTConfig creates a Client from a REST config.
func NewFromRESTConfig(restConfig *rest.Config, opts Options) (Client, error) {
	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}

	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return NewFromClients(dynamicClient, mapper, opts), nil
}

// NewFromClients creates a Client from pre-configured clients.
// This is useful for testing with fake clients.
func NewFromClients(dynamicClient dynamic.Interface, mapper meta.RESTMapper, opts Options) Client {
	if opts.FieldManager == "" {
		opts.FieldManager = "lhctl"
	}
	if opts.Namespace == "" {
		opts.Namespace = metav1.NamespaceDefault
	}
	return &client{
		dynamicClient: dynamicClient,
		mapper:        mapper,
		opts:          opts,
	}
}

func (c *client) resource(gvr schema.GroupVersionResource, namespace string) dynamic.ResourceInterface {
	if namespace == "" {
		return c.dynamicClient.Resource(gvr)
	}
	return c.dynamicClient.Resource(gvr).Namespace(namespace)
}

// Get implements Client.
func (c *client) Get(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string) (*unstructured.Unstructured, error) {
	obj, err := c.resource(gvr, namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s/%s: %w", gvr.Resource, namespace, name, err)
	}
	return obj, nil
}

// List implements Client.
func (c *client) List(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (*unstructured.UnstructuredList, error) {
	list, err := c.resource(gvr, namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in %q: %w", gvr.Resource, namespace, err)
	}
	return list, nil
}

// Patch implements Client.
func (c *client) Patch(ctx context.Context, gvr schema.GroupVersionResource, namespace, name string, mergePatch []byte) error {
	_, err := c.resource(gvr, namespace).Patch(ctx, name, types.MergePatchType, mergePatch, metav1.PatchOptions{
		FieldManager: c.opts.FieldManager,
	})
	if err != nil {
		return fmt.Errorf("failed to patch %s %s/%s: %w", gvr.Resource, namespace, name, err)
	}
	return nil
}

// Watch implements Client.
func (c *client) Watch(ctx context.Context, gvr schema.GroupVersionResource, namespace, labelSelector string) (watch.Interface, error) {
	w, err := c.resource(gvr, namespace).Watch(ctx, metav1.ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s in %q: %w", gvr.Resource, namespace, err)
	}
	return w, nil
}
