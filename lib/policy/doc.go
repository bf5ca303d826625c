// Package policy vetoes lock operations with an Open Policy Agent rego policy.
//
// The policy is evaluated with the input
//
//	{"action": "lock|unlock|write", "path": "/doc.txt", "owner": "...",
//	 "scope": "exclusive|shared", "depth": "0|infinity", "timeout": 1800}
//
// (write only carries action and path) and must produce true to allow the operation.
package policy
