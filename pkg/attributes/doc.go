// Package attributes provides the nested document that backs every resource
// object.
//
// Values are addressed with dot-delimited paths such as "metadata.labels.app"
// and are stored in their JSON form. The store remembers the last state seen
// on the server so that callers can tell whether a resource was modified
// locally:
//
//	s := attributes.New(nil)
//	s.Set("metadata.name", "nginx")
//	s.SyncWith(serverPayload)
//	s.Set("spec.replicas", 3)
//	s.HasChanged() // true
package attributes
