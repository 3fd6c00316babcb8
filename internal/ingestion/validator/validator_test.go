package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/ingestion"
)

func TestValidateDocument(t *testing.T) {
	v := New([]string{".md", "mdx"})
	tests := []struct {
		name    string
		req     ingestion.DocumentRequest
		field   string
		wantErr bool
	}{
		{"valid", ingestion.DocumentRequest{Filename: "docs/a.md", Content: "alpha"}, "", false},
		{"uppercase extension", ingestion.DocumentRequest{Filename: "A.MDX", Content: "alpha"}, "", false},
		{"empty content allowed", ingestion.DocumentRequest{Filename: "a.md"}, "", false},
		{"missing filename", ingestion.DocumentRequest{Content: "alpha"}, "filename", true},
		{"absolute path", ingestion.DocumentRequest{Filename: "/etc/a.md"}, "filename", true},
		{"parent escape", ingestion.DocumentRequest{Filename: "../a.md"}, "filename", true},
		{"unclean path", ingestion.DocumentRequest{Filename: "docs//a.md"}, "filename", true},
		{"wrong extension", ingestion.DocumentRequest{Filename: "main.go"}, "filename", true},
		{"invalid utf8", ingestion.DocumentRequest{Filename: "a.md", Content: "\xff\xfe"}, "content", true},
		{"too large", ingestion.DocumentRequest{Filename: "a.md", Content: strings.Repeat("a", maxContentLength+1)}, "content", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateDocument(&tt.req)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Fields, tt.field)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	v := New(nil)

	var vErr *ValidationError
	require.ErrorAs(t, v.ValidateBatch(&ingestion.BatchRequest{}), &vErr)
	assert.Contains(t, vErr.Fields, "documents")

	err := v.ValidateBatch(&ingestion.BatchRequest{Documents: []ingestion.DocumentRequest{
		{Filename: "a.txt", Content: "any extension"},
		{Filename: "", Content: "x"},
	}})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, map[string]string{"documents[1].filename": "filename is required"}, vErr.Fields)
	assert.Equal(t, "documents[1].filename: filename is required", err.Error())
}
