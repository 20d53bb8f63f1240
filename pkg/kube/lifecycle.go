package kube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/giantswarm/k8s-resource-client/pkg/paths"
)

// PatchDocument is a patch that can be sent to the server. It is
// implemented by *patch.JSONPatch and *patch.MergePatch.
type PatchDocument interface {
	json.Marshaler
	ContentType() string
}

// Refresh reads the resource from the server and replaces its attributes.
func (r *Resource) Refresh(ctx context.Context) error {
	return r.run(ctx, "get", func(ctx context.Context) error {
		attrs, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		r.SyncWith(attrs)
		r.deleted = false
		return nil
	})
}

// Exists reports whether the resource exists on the server. The local
// attributes are left untouched.
func (r *Resource) Exists(ctx context.Context) (bool, error) {
	exists := false
	err := r.run(ctx, "exists", func(ctx context.Context) error {
		_, err := r.fetch(ctx)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Create posts the resource to its collection and syncs with the response.
func (r *Resource) Create(ctx context.Context) error {
	return r.run(ctx, "create", r.create)
}

// Update replaces the resource on the server with the local attributes.
//
// It does nothing when HasChanged is false, which includes resources that
// were never synced. The original snapshot is re-read from the server first;
// no resourceVersion precondition is sent, so concurrent edits made by other
// writers are overwritten.
func (r *Resource) Update(ctx context.Context) error {
	if err := r.bound(); err != nil {
		return err
	}
	if !r.HasChanged() {
		return nil
	}
	return r.run(ctx, "update", func(ctx context.Context) error {
		attrs, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		r.SyncOriginalWith(attrs)
		return r.replace(ctx)
	})
}

// Delete removes the resource. It does nothing for resources that were
// never synced. The current resourceVersion and uid are fetched and sent as
// preconditions.
func (r *Resource) Delete(ctx context.Context, opts DeleteOptions) error {
	if err := r.bound(); err != nil {
		return err
	}
	if !r.IsSynced() {
		return nil
	}
	return r.run(ctx, "delete", func(ctx context.Context) error {
		attrs, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		resourceVersion, _, _ := unstructured.NestedString(attrs, "metadata", "resourceVersion")
		uid, _, _ := unstructured.NestedString(attrs, "metadata", "uid")

		if _, err := r.session.dispatcher.Do(ctx, r.request(OpDelete, paths.ResourcePath(r.ref()), opts.body(resourceVersion, uid))); err != nil {
			return err
		}
		r.Unsync()
		r.deleted = true
		return nil
	})
}

// CreateOrUpdate creates the resource when the server rejects a read of it,
// and updates it otherwise.
func (r *Resource) CreateOrUpdate(ctx context.Context) error {
	return r.run(ctx, "create_or_update", func(ctx context.Context) error {
		attrs, err := r.fetch(ctx)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return r.create(ctx)
		}
		if err != nil {
			return err
		}
		r.SyncOriginalWith(attrs)
		if !r.HasChanged() {
			return nil
		}
		return r.replace(ctx)
	})
}

// Patch sends p to the server and syncs with the response.
func (r *Resource) Patch(ctx context.Context, p PatchDocument) error {
	if p == nil {
		return errors.New("patch cannot be nil")
	}
	var op Operation
	switch p.ContentType() {
	case string(types.JSONPatchType):
		op = OpJSONPatch
	case string(types.MergePatchType):
		op = OpJSONMergePatch
	default:
		return fmt.Errorf("unsupported patch content type %q", p.ContentType())
	}

	return r.run(ctx, "patch", func(ctx context.Context) error {
		body, err := p.MarshalJSON()
		if err != nil {
			return fmt.Errorf("failed to encode patch: %w", err)
		}
		result, err := r.session.dispatcher.Do(ctx, r.request(op, paths.ResourcePath(r.ref()), body))
		if err != nil {
			return err
		}
		return r.syncResult(result)
	})
}

// Apply sends the local attributes as a server-side apply patch. An empty
// fieldManager uses DefaultFieldManager.
func (r *Resource) Apply(ctx context.Context, fieldManager string, force bool) error {
	if fieldManager == "" {
		fieldManager = DefaultFieldManager
	}
	return r.run(ctx, "apply", func(ctx context.Context) error {
		body := r.payload()
		unstructured.RemoveNestedField(body, "metadata", "managedFields")
		unstructured.RemoveNestedField(body, "metadata", "resourceVersion")

		req := r.request(OpApply, paths.ResourcePath(r.ref()), body)
		req.Query = Query{"fieldManager": fieldManager}
		if force {
			req.Query["force"] = true
		}
		result, err := r.session.dispatcher.Do(ctx, req)
		if err != nil {
			return err
		}
		return r.syncResult(result)
	})
}

// Scale sets the replica count through the scale subresource and refreshes
// the object.
func Scale(ctx context.Context, obj Object, replicas int64) error {
	scalable, err := requireCapability[Scalable](ctx, obj, CapabilityScale)
	if err != nil {
		return err
	}
	r := scalable.Base()
	return r.run(ctx, "scale", func(ctx context.Context) error {
		body := map[string]interface{}{
			"spec": map[string]interface{}{"replicas": replicas},
		}
		if _, err := r.session.dispatcher.Do(ctx, r.request(OpJSONMergePatch, paths.SubresourcePath(r.ref(), paths.SubresourceScale), body)); err != nil {
			return err
		}
		attrs, err := r.fetch(ctx)
		if err != nil {
			return err
		}
		r.SyncWith(attrs)
		return nil
	})
}

// Logs returns the container log of obj.
func Logs(ctx context.Context, obj Object, opts LogOptions) (string, error) {
	loggable, err := requireCapability[Loggable](ctx, obj, CapabilityLogs)
	if err != nil {
		return "", err
	}
	r := loggable.Base()

	var logs string
	err = r.run(ctx, "logs", func(ctx context.Context) error {
		query, err := opts.query(false)
		if err != nil {
			return err
		}
		req := r.request(OpLog, paths.SubresourcePath(r.ref(), paths.SubresourceLog), nil)
		req.Query = query
		result, err := r.session.dispatcher.Do(ctx, req)
		if err != nil {
			return err
		}
		logs = result.Raw
		return nil
	})
	return logs, err
}

// WatchLogs follows the container log of obj, calling handler per line.
func WatchLogs(ctx context.Context, obj Object, opts LogOptions, handler LineHandler) (any, error) {
	loggable, err := requireCapability[Loggable](ctx, obj, CapabilityLogs)
	if err != nil {
		return nil, err
	}
	r := loggable.Base()

	var value any
	err = r.run(ctx, "watch_logs", func(ctx context.Context) error {
		query, err := opts.query(true)
		if err != nil {
			return err
		}
		req := r.request(OpWatchLogs, paths.SubresourcePath(r.ref(), paths.SubresourceLog), nil)
		req.Query = query
		value, err = r.session.dispatcher.WatchLogs(ctx, req, handler)
		return err
	})
	return value, err
}

// Watch streams change events. A named obj watches that resource and is
// synced with every ADDED or MODIFIED event for it; an unnamed obj watches
// its collection in its namespace.
func Watch(ctx context.Context, obj Object, opts WatchOptions, handler WatchHandler) (any, error) {
	watchable, err := requireCapability[Watchable](ctx, obj, CapabilityWatch)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("watch handler cannot be nil")
	}
	r := watchable.Base()

	var value any
	err = r.run(ctx, "watch", func(ctx context.Context) error {
		name := r.Name()
		path := paths.WatchCollectionPath(r.ref())
		if name != "" {
			path = paths.WatchResourcePath(r.ref())
		}
		req := r.request(OpWatch, path, nil)
		req.Query = opts.query()

		v, err := r.session.dispatcher.Watch(ctx, req, func(event WatchEvent) (any, error) {
			if name != "" && event.Object != nil && event.Object.Base().Name() == name {
				switch event.Type {
				case watch.Added, watch.Modified:
					r.SyncWith(event.Object.Base().Raw())
				}
			}
			return handler(event)
		})
		value = v
		return err
	})
	return value, err
}

// Exec runs a command in a container of obj.
func Exec(ctx context.Context, obj Object, opts ExecOptions) (*StreamResult, error) {
	executable, err := requireCapability[Executable](ctx, obj, CapabilityExec)
	if err != nil {
		return nil, err
	}
	r := executable.Base()

	var result *StreamResult
	err = r.run(ctx, "exec", func(ctx context.Context) error {
		query, err := opts.query()
		if err != nil {
			return err
		}
		req := r.request(OpExec, paths.SubresourcePath(r.ref(), paths.SubresourceExec), nil)
		req.Query = query
		result, err = r.session.dispatcher.Stream(ctx, req, opts.stream())
		return err
	})
	return result, err
}

// Attach connects to the main process of a container of obj.
func Attach(ctx context.Context, obj Object, opts AttachOptions) (*StreamResult, error) {
	attachable, err := requireCapability[Attachable](ctx, obj, CapabilityAttach)
	if err != nil {
		return nil, err
	}
	r := attachable.Base()

	var result *StreamResult
	err = r.run(ctx, "attach", func(ctx context.Context) error {
		query, err := opts.query()
		if err != nil {
			return err
		}
		req := r.request(OpAttach, paths.SubresourcePath(r.ref(), paths.SubresourceAttach), nil)
		req.Query = query
		result, err = r.session.dispatcher.Stream(ctx, req, opts.stream())
		return err
	})
	return result, err
}

func (r *Resource) bound() error {
	if r == nil || r.session == nil || r.Store == nil {
		return ErrNoSession
	}
	return nil
}

// run wraps fn in an operation span with metrics and logs.
func (r *Resource) run(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := r.bound(); err != nil {
		return err
	}
	ctx, finish := r.session.startOperation(ctx, op, r.kind.Kind, r.Namespace(), r.Name())
	err := fn(ctx)
	finish(err)
	return err
}

func (r *Resource) request(op Operation, path string, body interface{}) Request {
	return Request{
		Operation:    op,
		Path:         path,
		Body:         body,
		ResourceType: r.kind.Kind,
		Namespace:    r.Namespace(),
	}
}

// fetch reads the server copy of r without touching local state.
func (r *Resource) fetch(ctx context.Context) (map[string]interface{}, error) {
	ref := r.ref()
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", r.kind.Kind, err)
	}
	result, err := r.session.dispatcher.Do(ctx, r.request(OpGet, paths.ResourcePath(ref), nil))
	if err != nil {
		return nil, err
	}
	if result.Object == nil {
		return nil, fmt.Errorf("unexpected response reading %s %s: not an object", r.kind.Kind, r.Name())
	}
	return result.Object.Base().Raw(), nil
}

func (r *Resource) create(ctx context.Context) error {
	result, err := r.session.dispatcher.Do(ctx, r.request(OpCreate, paths.CollectionPath(r.ref()), r.payload()))
	if err != nil {
		return err
	}
	r.deleted = false
	return r.syncResult(result)
}

// replace PUTs the local attributes without their resourceVersion.
func (r *Resource) replace(ctx context.Context) error {
	body := r.payload()
	unstructured.RemoveNestedField(body, "metadata", "resourceVersion")
	result, err := r.session.dispatcher.Do(ctx, r.request(OpReplace, paths.ResourcePath(r.ref()), body))
	if err != nil {
		return err
	}
	return r.syncResult(result)
}

func (r *Resource) syncResult(result *Result) error {
	if result.Object == nil {
		return fmt.Errorf("unexpected response for %s %s: not an object", r.kind.Kind, r.Name())
	}
	r.SyncWith(result.Object.Base().Raw())
	return nil
}
