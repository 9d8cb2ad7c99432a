package callback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		want     Kind
		terminal bool
	}{
		{"start", Start, false},
		{"success", Success, true},
		{"FAILURE", Failure, true},
		{"cancel", Cancelled, true},
		{"cancelled", Cancelled, true},
		{"progress", Progress, false},
		{" named ", Named, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			kind, err := ParseKind(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, kind)
			assert.Equal(t, tc.terminal, kind.Terminal())

			roundTrip, err := ParseKind(kind.String())
			require.NoError(t, err)
			assert.Equal(t, kind, roundTrip)
		})
	}

	_, err := ParseKind("finished")
	assert.Error(t, err)
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestPayload(t *testing.T) {
	t.Parallel()

	var nilPayload Payload
	clone := nilPayload.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)

	original := Payload{KeyCallbackName: "kick", "power": 1}
	copied := original.Clone()
	copied["power"] = 2

	assert.Equal(t, 1, original["power"])
	assert.Equal(t, "kick", copied.Name())
	assert.Equal(t, "", Payload{KeyCallbackName: 5}.Name())
}
