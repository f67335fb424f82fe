package rolemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		want       RuleSet
		wantIssues int
	}{
		{
			name: "empty string",
			raw:  "",
		},
		{
			name: "single rule single predicate",
			raw:  "admin:userName,=,extAdmin",
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "userName", Op: OpEquals, Value: "extAdmin"}}},
			},
		},
		{
			name: "multiple rules and predicates",
			raw:  "admin:userName,=,extAdmin|employee:mail,@=,company.com;affiliate,~=,xyz",
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "userName", Op: OpEquals, Value: "extAdmin"}}},
				{RoleID: "employee", Predicates: []Predicate{
					{Attribute: "mail", Op: OpDomain, Value: "company.com"},
					{Attribute: "affiliate", Op: OpContains, Value: "xyz"},
				}},
			},
		},
		{
			name: "whitespace is trimmed",
			raw:  " admin : userName , = , extAdmin ",
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "userName", Op: OpEquals, Value: "extAdmin"}}},
			},
		},
		{
			name:       "rule without colon is dropped",
			raw:        "admin|employee:mail,@=,company.com",
			wantIssues: 1,
			want: RuleSet{
				{RoleID: "employee", Predicates: []Predicate{{Attribute: "mail", Op: OpDomain, Value: "company.com"}}},
			},
		},
		{
			name:       "predicate with wrong field count is dropped",
			raw:        "admin:userName,=,extAdmin;mail,@=",
			wantIssues: 1,
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "userName", Op: OpEquals, Value: "extAdmin"}}},
			},
		},
		{
			name:       "comma in comparison value is a grammar error",
			raw:        "admin:cn,=,Doe, John",
			wantIssues: 2, // 4 fields, then the rule is left without predicates
		},
		{
			name:       "unknown operator is kept but reported",
			raw:        "admin:userName,!=,extAdmin",
			wantIssues: 1,
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "userName", Op: "!=", Value: "extAdmin"}}},
			},
		},
		{
			name:       "rule with only malformed predicates is dropped",
			raw:        "admin:userName",
			wantIssues: 2,
		},
		{
			name:       "empty rule between separators",
			raw:        "admin:uid,=,x||employee:mail,@=,y.com",
			wantIssues: 1,
			want: RuleSet{
				{RoleID: "admin", Predicates: []Predicate{{Attribute: "uid", Op: OpEquals, Value: "x"}}},
				{RoleID: "employee", Predicates: []Predicate{{Attribute: "mail", Op: OpDomain, Value: "y.com"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, issues := Parse(tt.raw)
			assert.Equal(t, tt.want, set)
			assert.Len(t, issues, tt.wantIssues)
		})
	}
}

func TestParseIssueString(t *testing.T) {
	_, issues := Parse("admin")
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].String(), "rule 0")
	assert.Contains(t, issues[0].String(), "admin")
}

func TestRuleSetRoles(t *testing.T) {
	set, issues := Parse("admin:a,=,1|employee:b,=,2|admin:c,=,3")
	require.Empty(t, issues)
	assert.Equal(t, []string{"admin", "employee"}, set.Roles())
}
