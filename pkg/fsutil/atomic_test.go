package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	leftovers, err := filepath.Glob(path + ".tmp-*")
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean identifier", "alice_dev", "alice_dev"},
		{"ipv4", "203.0.113.4", "203.0.113.4"},
		{"path traversal", "../etc/passwd", `^_etc_passwd-[0-9a-f]{12}$`},
		{"ipv6", "2001:db8::1", `^2001_db8_1-[0-9a-f]{12}$`},
		{"empty", "", `^unknown-[0-9a-f]{12}$`},
		{"looks hashed already", "bob-0123456789ab", `^bob-0123456789ab-[0-9a-f]{12}$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeName(tt.in)
			if strings.HasPrefix(tt.want, "^") {
				assert.Regexp(t, tt.want, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSafeName_DistinctInputsStayDistinct(t *testing.T) {
	inputs := []string{"a/b", "a_b", "a:b", "a b", " a_b", "a_b.", strings.Repeat("z", 130), strings.Repeat("z", 131)}

	seen := make(map[string]string)
	for _, in := range inputs {
		got := SafeName(in)
		owner, taken := seen[got]
		assert.False(t, taken, "%q and %q both map to %q", owner, in, got)
		seen[got] = in
		assert.NotContains(t, got, "/")
	}
}
