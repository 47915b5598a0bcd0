package processor

import (
	"testing"

	"github.com/hengadev/fieldcrypt/internal/fcerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		want    TagOptions
		wantErr bool
	}{
		{name: "bare", tag: "encrypt", want: TagOptions{Enabled: true}},
		{name: "algorithm", tag: "encrypt,algorithm=DES", want: TagOptions{Algorithm: "DES", Enabled: true}},
		{name: "disabled", tag: "encrypt,enabled=false", want: TagOptions{Enabled: false}},
		{name: "all options with spaces", tag: " encrypt, strategy=mine , algorithm=AES,enabled=true", want: TagOptions{Algorithm: "AES", Strategy: "mine", Enabled: true}},
		{name: "trailing comma", tag: "encrypt,", want: TagOptions{Enabled: true}},
		{name: "missing encrypt", tag: "algorithm=AES", wantErr: true},
		{name: "empty", tag: "", wantErr: true},
		{name: "option without value", tag: "encrypt,algorithm", wantErr: true},
		{name: "bad boolean", tag: "encrypt,enabled=maybe", wantErr: true},
		{name: "unknown option", tag: "encrypt,mode=cbc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTag(tt.tag)
			if tt.wantErr {
				assert.ErrorIs(t, err, fcerr.ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"Phone":       "phone",
		"PhoneNumber": "phone_number",
		"UserID":      "user_id",
		"HTTPServer":  "http_server",
		"Address2":    "address2",
		"already":     "already",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "email_address", columnName("email_address,omitempty", "Email"))
	assert.Equal(t, "home_phone", columnName("", "HomePhone"))
	assert.Equal(t, "home_phone", columnName("-", "HomePhone"))
}

func TestInferTable(t *testing.T) {
	tests := map[string]string{
		"User":        "user",
		"OrderEntity": "order",
		"UserModel":   "user",
		"AccountDTO":  "account",
		"Entity":      "entity",
		"UserProfile": "userprofile",
	}
	for in, want := range tests {
		assert.Equal(t, want, InferTable(in), in)
	}
}
