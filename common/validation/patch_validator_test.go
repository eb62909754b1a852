package validation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReportPatch(t *testing.T) {
	v := NewPatchValidator()

	tests := []struct {
		name    string
		patch   string
		wantErr string
	}{
		{name: "title and severity", patch: `{"title":"Phishing wave","severity":"high"}`},
		{name: "clear optional field", patch: `{"affected_systems":null}`},
		{name: "replace evidence", patch: `{"evidence_urls":["https://a","https://b"]}`},
		{name: "close report", patch: `{"status":"closed"}`},
		{name: "not an object", patch: `["title"]`, wantErr: "must be a JSON object"},
		{name: "empty", patch: `{}`, wantErr: "patch is empty"},
		{name: "immutable reporter", patch: `{"reporter_address":"0xabc"}`, wantErr: "immutable"},
		{name: "immutable analysis", patch: `{"ai_analysis":"fake"}`, wantErr: "immutable"},
		{name: "remove title", patch: `{"title":null}`, wantErr: "cannot be removed"},
		{name: "blank description", patch: `{"description":"  "}`, wantErr: "cannot be empty"},
		{name: "bad severity", patch: `{"severity":"urgent"}`, wantErr: "invalid severity"},
		{name: "link status", patch: `{"status":"linked"}`, wantErr: "set when a ticket is opened"},
		{name: "bad status", patch: `{"status":"done"}`, wantErr: "invalid report status"},
		{name: "evidence not array", patch: `{"evidence_urls":"https://a"}`, wantErr: "must be an array"},
		{name: "evidence item type", patch: `{"evidence_urls":[1]}`, wantErr: "must be a string"},
		{name: "unknown field", patch: `{"priority":1}`, wantErr: "unknown field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateReportPatch([]byte(tt.patch))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportPatch_EvidenceLimit(t *testing.T) {
	urls := make([]string, MaxEvidenceURLs+1)
	for i := range urls {
		urls[i] = fmt.Sprintf(`"https://e/%d"`, i)
	}
	patch := `{"evidence_urls":[` + strings.Join(urls, ",") + `]}`

	err := NewPatchValidator().ValidateReportPatch([]byte(patch))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot hold more than")
}
