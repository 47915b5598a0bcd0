package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knownForTest(name string) bool {
	switch strings.ToUpper(name) {
	case "AES", "DES":
		return true
	}
	return false
}

func TestStructTagValidator(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantErrs []string
	}{
		{
			name: "valid",
			src: `package m
type User struct {
	Phone string ` + "`fieldcrypt:\"encrypt\" db:\"phone\"`" + `
	Email *string ` + "`fieldcrypt:\"encrypt,algorithm=des\"`" + `
	Age int
}`,
		},
		{
			name: "non string field",
			src: `package m
type User struct {
	Age int ` + "`fieldcrypt:\"encrypt\"`" + `
}`,
			wantErrs: []string{"field 'Age'", "string or *string"},
		},
		{
			name: "named string types",
			src: `package m
type Phone string
type Mobile Phone
type User struct {
	Phone  Phone ` + "`fieldcrypt:\"encrypt\"`" + `
	Mobile *Mobile ` + "`fieldcrypt:\"encrypt\"`" + `
}`,
		},
		{
			name: "named non string type",
			src: `package m
type Score int
type User struct {
	Score Score ` + "`fieldcrypt:\"encrypt\"`" + `
}`,
			wantErrs: []string{"field 'Score'", "string or *string"},
		},
		{
			name: "unknown algorithm",
			src: `package m
type User struct {
	Phone string ` + "`fieldcrypt:\"encrypt,algorithm=ROT13\"`" + `
}`,
			wantErrs: []string{"unknown algorithm 'ROT13'"},
		},
		{
			name: "malformed tag",
			src: `package m
type User struct {
	Phone string ` + "`fieldcrypt:\"encrypt,enabled=sometimes\"`" + `
}`,
			wantErrs: []string{"field 'Phone'", "boolean"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewStructTagValidator(knownForTest)
			err := v.ValidateSource("user.go", tt.src)
			if len(tt.wantErrs) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErrs {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestStructTagValidator_ParseError(t *testing.T) {
	v := NewStructTagValidator(nil)
	err := v.ValidateSource("broken.go", "package m\ntype {")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse file broken.go")
}
