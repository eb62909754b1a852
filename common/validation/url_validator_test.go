package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLValidator(t *testing.T) {
	v := NewURLValidator()

	tests := []struct {
		url     string
		wantErr string
	}{
		{url: "https://logs.example.com/case/42"},
		{url: "http://203.0.113.7/pcap?id=9"},
		{url: "logs.example.com/case", wantErr: "needs a scheme"},
		{url: "file:///etc/passwd", wantErr: "not allowed"},
		{url: "gopher://example.com", wantErr: "not allowed"},
		{url: "https://admin:pw@example.com", wantErr: "credentials"},
		{url: "http://localhost:8080/", wantErr: "not reachable"},
		{url: "http://grafana.localhost/", wantErr: "not reachable"},
		{url: "http://127.0.0.1/", wantErr: "loopback"},
		{url: "http://10.1.2.3/", wantErr: "private network"},
		{url: "http://[fd00::1]/", wantErr: "private network"},
		{url: "http://169.254.169.254/latest/meta-data", wantErr: "link-local"},
		{url: "https://example.com/a/%2e%2e%2fsecret", wantErr: "blocked pattern"},
		{url: "https://example.com/" + strings.Repeat("a", MaxEvidenceURLLength), wantErr: "longer than"},
	}

	for _, tt := range tests {
		t.Run(tt.url[:min(len(tt.url), 40)], func(t *testing.T) {
			err := v.Validate(tt.url)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestURLValidator_ValidateAll(t *testing.T) {
	v := NewURLValidator()

	require.NoError(t, v.ValidateAll([]string{"https://a.example", "https://b.example"}))

	err := v.ValidateAll([]string{"https://a.example", "ftp://b.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "evidence_urls[1]")

	many := make([]string, MaxEvidenceURLs+1)
	for i := range many {
		many[i] = "https://a.example"
	}
	assert.Error(t, v.ValidateAll(many))
}
