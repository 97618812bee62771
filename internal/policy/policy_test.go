package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreason-ai/catalog/internal/model"
	"github.com/coreason-ai/catalog/internal/policy"
)

func manifestWithACLs(acls ...string) model.SourceManifest {
	return model.SourceManifest{
		URN:  "urn:coreason:source:test",
		ACLs: acls,
	}
}

func TestCheckAccess_GrantedOnOverlap(t *testing.T) {
	m := manifestWithACLs("finance-team", "legal-team")
	user := model.UserContext{Groups: []string{"eng-team", "finance-team"}}
	assert.True(t, policy.CheckAccess(m, user))
}

func TestCheckAccess_DeniedOnNoOverlap(t *testing.T) {
	m := manifestWithACLs("finance-team")
	user := model.UserContext{Groups: []string{"eng-team"}}
	assert.False(t, policy.CheckAccess(m, user))
}

func TestCheckAccess_EmptyACLsDeniesNonServiceAccounts(t *testing.T) {
	m := manifestWithACLs()
	user := model.UserContext{Groups: []string{"eng-team"}}
	assert.False(t, policy.CheckAccess(m, user))
}

func TestCheckAccess_ServiceAccountBypasses(t *testing.T) {
	m := manifestWithACLs("finance-team")
	user := model.UserContext{
		Groups: []string{"unrelated-team"},
		Claims: map[string]any{"is_service_account": true},
	}
	assert.True(t, policy.CheckAccess(m, user))
}

func TestCheckAccess_CaseSensitive(t *testing.T) {
	m := manifestWithACLs("Finance-Team")
	user := model.UserContext{Groups: []string{"finance-team"}}
	assert.False(t, policy.CheckAccess(m, user), "ACL matching must be exact case-sensitive, no normalization")
}
