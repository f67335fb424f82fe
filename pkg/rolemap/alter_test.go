package rolemap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samlbridge/samlbridge/pkg/assertion"
)

func TestPipelineApply(t *testing.T) {
	addAuditor := func(roles []string, attrs assertion.Assertion) []string {
		if attrs.Has("auditFlag") {
			return append(roles, "auditor")
		}
		return roles
	}
	dropViewer := func(roles []string, _ assertion.Assertion) []string {
		out := roles[:0]
		for _, r := range roles {
			if r != "viewer" {
				out = append(out, r)
			}
		}
		return out
	}

	p := Pipeline{addAuditor, nil, dropViewer}
	attrs := assertion.Assertion{"auditFlag": {"1"}}

	got := p.Apply([]string{"viewer", "employee"}, attrs)
	assert.Equal(t, []string{"employee", "auditor"}, got)
}

func TestPipelineApplyDoesNotMutateInput(t *testing.T) {
	p := Pipeline{func(roles []string, _ assertion.Assertion) []string {
		return append(roles, "extra")
	}}

	in := []string{"employee"}
	out := p.Apply(in, nil)

	assert.Equal(t, []string{"employee"}, in)
	assert.Equal(t, []string{"employee", "extra"}, out)
}

func TestPipelineApplyDeduplicates(t *testing.T) {
	p := Pipeline{func(roles []string, _ assertion.Assertion) []string {
		return append(roles, "employee", "", "admin")
	}}

	got := p.Apply([]string{"employee", "admin"}, nil)
	assert.Equal(t, []string{"employee", "admin"}, got)
}

func TestEmptyPipeline(t *testing.T) {
	var p Pipeline
	assert.Equal(t, []string{"employee"}, p.Apply([]string{"employee"}, nil))
}
