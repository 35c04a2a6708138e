package metadata

import "strings"

// Policy path convention. Notification routing depends on the exact
// segment counts here: a local-policies path is the 3-segment
// /admin/policies prefix, the namespace (up to three segments of its
// own), and the fixed local-policies tail.
const (
	policiesBasePrefix  = "/admin/policies/"
	localPoliciesSuffix = "local-policies"
)

// LocalPoliciesPath returns the metadata path of a namespace's local
// policy, e.g. "/admin/policies/tenant/ns/local-policies".
func LocalPoliciesPath(namespace string) string {
	return policiesBasePrefix + namespace + "/" + localPoliciesSuffix
}

// IsLocalPoliciesPath reports whether a notification path addresses a
// namespace local policy.
func IsLocalPoliciesPath(path string) bool {
	return strings.HasPrefix(path, policiesBasePrefix) &&
		strings.HasSuffix(path, "/"+localPoliciesSuffix)
}

// NamespaceFromPoliciesPath recovers the namespace name from a policies
// path by stripping the fixed 3-segment prefix ("", "admin", "policies")
// and trimming the trailing local-policies literal when present.
//
// Parameters:
//   - path: Policies path, e.g. "/admin/policies/tenant/cluster/ns/local-policies"
//
// Returns:
//   - string: Namespace name, e.g. "tenant/cluster/ns" ("" for malformed paths)
func NamespaceFromPoliciesPath(path string) string {
	if path == "" {
		return ""
	}

	// Split into at most 6 parts: "", "admin", "policies", then up to
	// three namespace segments (the last part keeps any remainder).
	parts := strings.SplitN(path, "/", 6)
	if len(parts) < 4 || parts[0] != "" || parts[1] != "admin" || parts[2] != "policies" {
		return ""
	}

	ns := strings.Join(parts[3:], "/")
	ns = strings.TrimSuffix(ns, "/"+localPoliciesSuffix)

	return ns
}
