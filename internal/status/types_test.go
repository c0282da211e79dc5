package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code   Code
		failed bool
	}{
		{code: CodeIdle},
		{code: CodeLoading},
		{code: CodeComplete},
		{code: CodeEmpty},
		{code: CodePartial},
		{code: CodeProviderError, failed: true},
		{code: CodeStorageError, failed: true},
		{code: CodeCancelled, failed: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.failed, tt.code.Failed())
			assert.NotEqual(t, string(tt.code), tt.code.Message(), "every code has a readable message")
		})
	}

	assert.Equal(t, "unknown", Code("unknown").Message())
}

func TestSyncStateLoading(t *testing.T) {
	t.Parallel()

	assert.True(t, SyncState{Phase: PhaseLoading}.Loading())
	assert.False(t, SyncState{Phase: PhaseIdle}.Loading())
}
