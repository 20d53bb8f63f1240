// Package cmd provides the command-line interface for k8s-resource-client.
//
// Every resource command resolves a cluster from the kubeconfig, builds a
// kube.Session and prints results as YAML, JSON or kind/name lines:
//
//	k8s-resource-client get KIND NAME           # Print a resource
//	k8s-resource-client list KIND [-l k=v]      # List resources, paging through the collection
//	k8s-resource-client apply -f FILE           # Create or update resources from a file
//	k8s-resource-client patch KIND NAME -p ...  # Apply a merge or JSON patch
//	k8s-resource-client scale KIND NAME --replicas N
//	k8s-resource-client delete KIND NAME
//	k8s-resource-client watch KIND [NAME]       # Stream change events
//	k8s-resource-client logs POD [-f]           # Print or follow container logs
//	k8s-resource-client exec POD -- CMD...      # Run a command in a container
//
// Supporting commands:
//
//	k8s-resource-client token                   # Print the resolved bearer token as an ExecCredential
//	k8s-resource-client contexts                # List kubeconfig contexts
//	k8s-resource-client kinds                   # List the built-in resource kinds
//	k8s-resource-client version
//	k8s-resource-client self-update
//
// Credentials come from the kubeconfig user unless one of --token,
// --token-file, --eks-cluster, --oauth-username or --as-service-account is
// given. Most global flags can also be set through K8SRC_* environment
// variables; flags take precedence.
//
// Secret values are masked in the output unless --show-secrets is set.
// --metrics-addr serves Prometheus metrics for the lifetime of the command.
package cmd
