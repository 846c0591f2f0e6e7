package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/drugpipe/pkg/errors"
)

func TestStateManager(t *testing.T) {
	sm := NewStateManager()
	assert.False(t, sm.IsFitted())

	err := sm.RequireFitted("StandardScaler", "Transform")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Transform", notFitted.Method)

	sm.SetDimensions(5, 140)
	sm.SetFitted()
	require.NoError(t, sm.RequireFitted("StandardScaler", "Transform"))

	restored := NewStateManager()
	restored.SetState(sm.GetState())
	f, n := restored.GetDimensions()
	assert.Equal(t, 5, f)
	assert.Equal(t, 140, n)
	assert.True(t, restored.IsFitted())

	restored.Reset()
	assert.False(t, restored.IsFitted())
}

func TestStateTreeRoundTrip(t *testing.T) {
	root := NewState("drugpipe.pipeline.Pipeline", map[string]interface{}{"label": "Drug"})
	child := NewState("drugpipe.preprocessing.StandardScaler", nil)
	require.NoError(t, child.SetData(map[string][]float64{"mean": {1.5, 2}}))
	root.AddChild("scaler", child)
	root.AddChild("encoder", NewState("drugpipe.preprocessing.OrdinalEncoder", map[string]interface{}{"n": 3}))

	raw, err := json.Marshal(root)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"__type__":"drugpipe.pipeline.Pipeline"`)

	var decoded State
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, decoded.Expect("drugpipe.pipeline.Pipeline"))
	assert.Equal(t, "Drug", decoded.ParamString("label", ""))

	scaler, err := decoded.Child("scaler")
	require.NoError(t, err)
	var data map[string][]float64
	require.NoError(t, scaler.DecodeData(&data))
	assert.Equal(t, []float64{1.5, 2}, data["mean"])

	enc, err := decoded.Child("encoder")
	require.NoError(t, err)
	assert.Equal(t, 3, enc.ParamInt("n", 0))
	assert.Equal(t, 7, enc.ParamInt("missing", 7))

	_, err = decoded.Child("classifier")
	assert.Error(t, err)

	assert.Equal(t, []string{
		"drugpipe.pipeline.Pipeline",
		"drugpipe.preprocessing.OrdinalEncoder",
		"drugpipe.preprocessing.StandardScaler",
	}, decoded.Types())
}

func TestStateExpect(t *testing.T) {
	s := NewState("a.B", nil)
	assert.NoError(t, s.Expect("a.B"))
	assert.Error(t, s.Expect("a.C"))

	s.Version = 99
	assert.Error(t, s.Expect("a.B"))

	var nilState *State
	assert.Error(t, nilState.Expect("a.B"))
}

func TestWriteJSONFileReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.json")

	require.NoError(t, WriteJSONFile(path, map[string]int{"v": 1}))
	require.NoError(t, WriteJSONFile(path, map[string]int{"v": 2}))

	var got map[string]int
	require.NoError(t, ReadJSONFile(path, &got))
	assert.Equal(t, 2, got["v"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestReadJSONFileMissing(t *testing.T) {
	var v map[string]int
	err := ReadJSONFile(filepath.Join(t.TempDir(), "absent.json"), &v)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
