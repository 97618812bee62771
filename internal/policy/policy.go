// Package policy implements the two-gate governance model: an ACL
// set-intersection check and an external OPA-compatible policy evaluation.
package policy

import (
	"errors"

	"github.com/coreason-ai/catalog/internal/model"
)

// Error taxonomy for policy evaluation.
var (
	ErrPolicyTimeout          = errors.New("policy: evaluation timed out")
	ErrPolicyEvaluationFailed = errors.New("policy: evaluation failed")
	ErrInvalidInput           = errors.New("policy: invalid input")
)

// CheckAccess is the ACL gate: it grants access if the user's groups and the
// manifest's ACLs intersect, by exact case-sensitive match (no tag-overlap
// or hierarchy fallback). A service account bypasses this gate entirely.
//
// A manifest with an empty ACL set grants access to nobody but service
// accounts — see model.SourceManifest's acls doc comment.
func CheckAccess(manifest model.SourceManifest, user model.UserContext) bool {
	if user.IsServiceAccount() {
		return true
	}

	granted := make(map[string]struct{}, len(manifest.ACLs))
	for _, g := range manifest.ACLs {
		granted[g] = struct{}{}
	}

	for _, g := range user.Groups {
		if _, ok := granted[g]; ok {
			return true
		}
	}
	return false
}
