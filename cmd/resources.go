package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/giantswarm/k8s-resource-client/internal/instrumentation"
	"github.com/giantswarm/k8s-resource-client/internal/output"
	"github.com/giantswarm/k8s-resource-client/pkg/kube"
	"github.com/giantswarm/k8s-resource-client/pkg/patch"
)

// defaultChunkSize is the page size used when listing.
const defaultChunkSize = 500

// runWithClient connects, runs fn and releases the runtime.
func runWithClient(cmd *cobra.Command, config *CLIConfig, fn func(ctx context.Context, rt *clientRuntime) error) error {
	ctx := cmd.Context()
	rt, err := connect(ctx, config, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, span := instrumentation.StartSpan(ctx, "cli."+cmd.Name())
	defer span.End()
	err = fn(ctx, rt)
	if err != nil {
		instrumentation.SetSpanError(span, err)
	}
	return err
}

// object builds an unsynced reference to kind/name in the session namespace.
func (rt *clientRuntime) object(kind, name string) (kube.Object, error) {
	return rt.session.New(kind, map[string]interface{}{
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": rt.session.Namespace(),
		},
	})
}

// attrs returns the printable document of obj.
func attrs(obj kube.Object) map[string]interface{} {
	return obj.Base().ToUnstructured().Object
}

func newGetCmd(config *CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "get KIND NAME",
		Short: "Print a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				obj, err := rt.session.Get(ctx, args[0], rt.session.Namespace(), args[1])
				if err != nil {
					return err
				}
				return rt.printer.PrintObject(attrs(obj))
			})
		},
	}
}

func newListCmd(config *CLIConfig) *cobra.Command {
	var (
		selectors     []string
		fieldSelector string
		allNamespaces bool
		chunkSize     int64
	)

	cmd := &cobra.Command{
		Use:   "list KIND",
		Short: "List resources of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				namespace := rt.session.Namespace()
				if allNamespaces {
					namespace = ""
				}

				opts := kube.ListOptions{
					LabelSelector: selectors,
					FieldSelector: fieldSelector,
					Limit:         chunkSize,
				}
				var items []map[string]interface{}
				for {
					list, err := rt.session.List(ctx, args[0], namespace, opts)
					if err != nil {
						return err
					}
					for _, item := range list.Items {
						items = append(items, attrs(item))
					}
					if list.Continue == "" {
						break
					}
					opts.Continue = list.Continue
				}
				return rt.printer.PrintList(items)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&selectors, "selector", "l", nil, "Label selector, may be repeated")
	cmd.Flags().StringVar(&fieldSelector, "field-selector", "", "Field selector")
	cmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "List across all namespaces")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", defaultChunkSize, "Page size for list requests, 0 to fetch everything at once")
	return cmd
}

func newApplyCmd(config *CLIConfig) *cobra.Command {
	var (
		filename     string
		serverSide   bool
		fieldManager string
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "apply -f FILE",
		Short: "Create or update resources from a JSON or YAML file",
		Long: `Create or update every resource in FILE. Use "-" to read from standard input.

By default each resource is read from the server and replaced when it differs,
or created when it does not exist. With --server-side the resource is sent as
a server-side apply patch instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(filename, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				for _, doc := range docs {
					obj, err := rt.session.FromObject(doc)
					if err != nil {
						return err
					}
					if serverSide {
						err = obj.Base().Apply(ctx, fieldManager, force)
					} else {
						err = obj.Base().CreateOrUpdate(ctx)
					}
					if err != nil {
						return fmt.Errorf("failed to apply %s: %w", output.Name(doc), err)
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s applied\n", output.Name(attrs(obj)))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filename, "filename", "f", "", "File containing the resources, - for stdin")
	cmd.Flags().BoolVar(&serverSide, "server-side", false, "Use server-side apply")
	cmd.Flags().StringVar(&fieldManager, "field-manager", kube.DefaultFieldManager, "Field manager for server-side apply")
	cmd.Flags().BoolVar(&force, "force-conflicts", false, "Take ownership of conflicting fields during server-side apply")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

// readDocuments decodes every JSON or YAML document in filename. Documents
// of a kind ending in List are expanded into their items.
func readDocuments(filename string, stdin io.Reader) ([]map[string]interface{}, error) {
	var r io.Reader
	if filename == "-" {
		r = stdin
	} else {
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	decoder := utilyaml.NewYAMLOrJSONDecoder(r, 4096)
	var docs []map[string]interface{}
	for {
		var doc map[string]interface{}
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
		}
		if len(doc) == 0 {
			continue
		}
		kind, _ := doc["kind"].(string)
		if items, ok := doc["items"].([]interface{}); ok && strings.HasSuffix(kind, "List") {
			for _, item := range items {
				if m, ok := item.(map[string]interface{}); ok {
					docs = append(docs, m)
				}
			}
			continue
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no resources found in %s", filename)
	}
	return docs, nil
}

func newDeleteCmd(config *CLIConfig) *cobra.Command {
	var (
		cascade     string
		gracePeriod int64
	)

	cmd := &cobra.Command{
		Use:   "delete KIND NAME",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := kube.DeleteOptions{}
			switch cascade {
			case "foreground":
				opts.PropagationPolicy = metav1.DeletePropagationForeground
			case "background":
				opts.PropagationPolicy = metav1.DeletePropagationBackground
			case "orphan":
				opts.PropagationPolicy = metav1.DeletePropagationOrphan
			default:
				return fmt.Errorf("invalid cascade %q: must be foreground, background or orphan", cascade)
			}
			if gracePeriod >= 0 {
				opts.GracePeriodSeconds = &gracePeriod
			}

			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				obj, err := rt.session.Get(ctx, args[0], rt.session.Namespace(), args[1])
				if err != nil {
					return err
				}
				if err := obj.Base().Delete(ctx, opts); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", output.Name(attrs(obj)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&cascade, "cascade", "foreground", "Deletion propagation: foreground, background or orphan")
	cmd.Flags().Int64Var(&gracePeriod, "grace-period", -1, "Seconds before the resource is terminated, -1 for the server default")
	return cmd
}

func newPatchCmd(config *CLIConfig) *cobra.Command {
	var (
		patchType string
		body      string
	)

	cmd := &cobra.Command{
		Use:   "patch KIND NAME",
		Short: "Patch a resource with a JSON or merge patch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parsePatch(patchType, []byte(body))
			if err != nil {
				return err
			}
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				obj, err := rt.object(args[0], args[1])
				if err != nil {
					return err
				}
				if err := obj.Base().Patch(ctx, doc); err != nil {
					return err
				}
				return rt.printer.PrintObject(attrs(obj))
			})
		},
	}

	cmd.Flags().StringVar(&patchType, "type", "merge", "Patch type: merge or json")
	cmd.Flags().StringVarP(&body, "patch", "p", "", "The patch document")
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

// parsePatch decodes body as a patch of the given type.
func parsePatch(patchType string, body []byte) (kube.PatchDocument, error) {
	switch patchType {
	case "merge":
		p, err := patch.ParseMergePatch(body)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "json":
		p, err := patch.ParseJSONPatch(body)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("invalid patch type %q: must be merge or json", patchType)
	}
}

func newScaleCmd(config *CLIConfig) *cobra.Command {
	var replicas int64

	cmd := &cobra.Command{
		Use:   "scale KIND NAME",
		Short: "Set the replica count of a deployment, stateful set or replica set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if replicas < 0 {
				return fmt.Errorf("replicas must not be negative")
			}
			return runWithClient(cmd, config, func(ctx context.Context, rt *clientRuntime) error {
				obj, err := rt.object(args[0], args[1])
				if err != nil {
					return err
				}
				if err := kube.Scale(ctx, obj, replicas); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s scaled to %d\n", output.Name(attrs(obj)), replicas)
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&replicas, "replicas", 0, "Desired replica count")
	_ = cmd.MarkFlagRequired("replicas")
	return cmd
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the resource kinds known without discovery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, k := range kube.DefaultRegistry().Kinds() {
				scope := "cluster"
				if k.Namespaced {
					scope = "namespaced"
				}
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k.Kind, k.APIVersion, k.Plural, scope)
			}
			return nil
		},
	}
}
