package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/indago/internal/interfaces"
)

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()

	var gotParams string
	require.NoError(t, r.Register("screening", func(params json.RawMessage) (interfaces.WorkFunc, error) {
		gotParams = string(params)
		return func(ctx context.Context, report interfaces.ProgressFunc) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		}, nil
	}))

	fn, err := r.Build("screening", json.RawMessage(`{"strategy":"value"}`))
	require.NoError(t, err)
	require.NotNil(t, fn)
	assert.JSONEq(t, `{"strategy":"value"}`, gotParams)
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("nope", nil)
	assert.ErrorContains(t, err, "unknown job kind")
}

func TestRegistryValidation(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register("", func(params json.RawMessage) (interfaces.WorkFunc, error) { return nil, nil }))
	assert.Error(t, r.Register("screening", nil))
}

func TestRegistryKindsSorted(t *testing.T) {
	r := NewRegistry()

	factory := func(params json.RawMessage) (interfaces.WorkFunc, error) { return nil, nil }
	require.NoError(t, r.Register("research", factory))
	require.NoError(t, r.Register("screening", factory))

	assert.Equal(t, []string{"research", "screening"}, r.Kinds())
}
