package execution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMasker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		secrets  []string
		chunks   []string
		expected []string
	}{
		{
			name:     "no secrets pass through",
			chunks:   []string{"a", "b"},
			expected: []string{"a", "b"},
		},
		{
			name:     "possible prefix is held",
			secrets:  []string{"s3cr3t"},
			chunks:   []string{"token=s3c", "r3t\n"},
			expected: []string{"token=", SecretMask + "\n"},
		},
		{
			name:     "held text released when the secret does not follow",
			secrets:  []string{"s3cr3t"},
			chunks:   []string{"x s3", "x\n"},
			expected: []string{"x ", "s3x\n"},
		},
		{
			name:     "overlapping secrets",
			secrets:  []string{"yz", "xy"},
			chunks:   []string{"axy", "z\n"},
			expected: []string{"a" + SecretMask, "z\n"},
		},
		{
			name:     "longer secret masked whole",
			secrets:  []string{"abc", "abcdef"},
			chunks:   []string{"abcdef!"},
			expected: []string{SecretMask + "!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newMasker(tt.secrets)

			var got []string
			for _, chunk := range tt.chunks {
				got = append(got, m.mask(chunk))
			}

			assert.Equal(t, tt.expected, got)
			assert.Empty(t, m.flush())
		})
	}
}

func TestMasker_Flush(t *testing.T) {
	t.Parallel()

	m := newMasker([]string{"s3cr3t"})

	assert.Equal(t, "value ", m.mask("value s3cr"))
	assert.Equal(t, "s3cr", m.flush())
	assert.Empty(t, m.flush())
	assert.False(t, strings.Contains(m.mask("s3cr3t"), "s3cr3t"))
}
