package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScheme(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "s3 uri", path: "s3://bucket/key", want: "s3"},
		{name: "abfs uri", path: "abfs://container/key", want: "abfs"},
		{name: "ftp uri", path: "ftp://host/dir/file", want: "ftp"},
		{name: "file uri", path: "file:///tmp/data", want: "file"},
		{name: "bare path", path: "/tmp/data", want: "file"},
		{name: "relative path", path: "data/file.txt", want: "file"},
		{name: "empty", path: "", want: "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Scheme(tt.path))
		})
	}
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://bucket/key"))
	assert.True(t, IsRemote("abfss://container/key"))
	assert.False(t, IsRemote("file:///tmp/data"))
	assert.False(t, IsRemote("/tmp/data"))
}

func TestStripFilePrefix(t *testing.T) {
	assert.Equal(t, "/tmp/data", StripFilePrefix("file:///tmp/data"))
	assert.Equal(t, "/tmp/data", StripFilePrefix("/tmp/data"))
	assert.Equal(t, "s3://bucket/key", StripFilePrefix("s3://bucket/key"))

	// Idempotent.
	assert.Equal(t, "/tmp/data", StripFilePrefix(StripFilePrefix("file:///tmp/data")))
}
