// Package kube is a client for the Kubernetes REST API built around
// resource objects.
//
// A Session holds the connection to one API server: the HTTP transport, the
// credential provider and the registry of known kinds. Resources are created
// from a session and carry their attributes in an attributes.Store, which
// tracks the last state synchronized with the server:
//
//	s, err := kube.NewSession(cfg, kube.WithTokenProvider(provider))
//	if err != nil {
//		return err
//	}
//
//	obj, err := s.New("deployment", map[string]interface{}{
//		"metadata": map[string]interface{}{"name": "nginx"},
//		"spec":     map[string]interface{}{"replicas": 2},
//	})
//	if err != nil {
//		return err
//	}
//	if err := obj.Base().CreateOrUpdate(ctx); err != nil {
//		return err
//	}
//
// The lifecycle methods (Refresh, Create, Update, Delete, CreateOrUpdate,
// Patch, Apply) are available on every resource. Operations that only some
// kinds support are package functions gated on a capability interface:
//
//   - Scale: Deployment, StatefulSet, ReplicaSet
//   - Logs and WatchLogs: Pod
//   - Exec and Attach: Pod
//   - Watch: every kind that embeds WatchCapability
//
// Calling one of them on a kind without the capability fails with a
// CapabilityError before any request is sent.
//
// The Dispatcher translates an Operation into an HTTP method, content type
// and response handling. Watches and log follows are read line by line until
// the handler asks to stop; exec and attach run over a WebSocket using the
// channel.k8s.io subprotocols.
//
// Errors returned by the server are *APIError values that match the package
// sentinels with errors.Is. Failures to reach the server are reported as
// *ClusterNotReachableError.
package kube
