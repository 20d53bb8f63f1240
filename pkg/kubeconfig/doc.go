// Package kubeconfig resolves a kubeconfig context into a kube.Config and
// the credentials needed to authenticate against the cluster.
//
//	loaded, err := kubeconfig.Load(kubeconfig.Options{Context: "staging"})
//	if err != nil {
//		return err
//	}
//	provider, err := loaded.Provider()
//	if err != nil {
//		return err
//	}
//	var opts []kube.Option
//	if provider != nil {
//		opts = append(opts, kube.WithTokenProvider(provider))
//	}
//	session, err := kube.NewSession(loaded.Config, opts...)
package kubeconfig
