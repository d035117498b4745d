package azure

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dummyKey is a syntactically valid shared key for constructor tests.
var dummyKey = base64.StdEncoding.EncodeToString([]byte("not-a-real-account-key"))

func TestNewCredentialModes(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "anonymous",
			config: Config{AccountName: "acct", Anonymous: true},
		},
		{
			name:   "shared key",
			config: Config{AccountName: "acct", AccountKey: dummyKey},
		},
		{
			name: "service principal",
			config: Config{
				AccountName:  "acct",
				ClientID:     "client",
				ClientSecret: "secret",
				TenantID:     "11111111-2222-3333-4444-555555555555",
			},
		},
		{
			name:    "missing account name",
			config:  Config{AccountKey: dummyKey},
			wantErr: true,
			errMsg:  "account name is required",
		},
		{
			name:    "no usable credentials",
			config:  Config{AccountName: "acct"},
			wantErr: true,
			errMsg:  "account key or a client id",
		},
		{
			name: "partial service principal",
			config: Config{
				AccountName: "acct",
				ClientID:    "client",
			},
			wantErr: true,
			errMsg:  "account key or a client id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, b)
		})
	}
}

func TestSchemeDefaults(t *testing.T) {
	b, err := New(Config{AccountName: "acct", Anonymous: true})
	require.NoError(t, err)
	assert.Equal(t, "abfs", b.Scheme())

	b, err = New(Config{AccountName: "acct", Anonymous: true, Scheme: "abfss"})
	require.NoError(t, err)
	assert.Equal(t, "abfss", b.Scheme())

	assert.Equal(t, "/", b.Separator())
}
