package model

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNetwork struct {
	name   string
	params []*Param
}

func (s *stubNetwork) Name() string     { return s.name }
func (s *stubNetwork) Params() []*Param { return s.params }
func (s *stubNetwork) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

func newStub(name string) *stubNetwork {
	w := NewParam("dense0/w", 2, 3)
	b := NewParam("dense0/b", 3)
	for i := range w.Value {
		w.Value[i] = float64(i) * 0.1
	}
	b.Value[1] = -1
	return &stubNetwork{name: name, params: []*Param{w, b}}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	src := newStub("SimpleNet")
	snap := Snapshot(src)
	require.NoError(t, snap.Validate())

	// スナップショットは元のパラメータと共有しない
	src.params[0].Value[0] = 42

	dst := &stubNetwork{name: "SimpleNet", params: []*Param{NewParam("dense0/w", 2, 3), NewParam("dense0/b", 3)}}
	dst.params[0].Grad[0] = 7
	require.NoError(t, Restore(dst, snap))

	assert.Equal(t, 0.0, dst.params[0].Value[0])
	assert.InDelta(t, 0.5, dst.params[0].Value[5], 1e-12)
	assert.Equal(t, -1.0, dst.params[1].Value[1])
	assert.Equal(t, 0.0, dst.params[0].Grad[0], "restore must reset gradients")
}

func TestRestoreRejectsMismatch(t *testing.T) {
	snap := Snapshot(newStub("SimpleNet"))

	tests := []struct {
		name string
		net  *stubNetwork
	}{
		{"different arch", newStub("MLPNet")},
		{"different shape", &stubNetwork{name: "SimpleNet", params: []*Param{NewParam("dense0/w", 3, 3), NewParam("dense0/b", 3)}}},
		{"missing param", &stubNetwork{name: "SimpleNet", params: []*Param{NewParam("dense0/w", 2, 3)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Restore(tt.net, snap))
		})
	}
}

func TestValidateDetectsCorruptSnapshot(t *testing.T) {
	snap := Snapshot(newStub("SimpleNet"))
	snap.Params[1].Values = snap.Params[1].Values[:2]
	assert.Error(t, snap.Validate())

	snap = Snapshot(newStub("SimpleNet"))
	snap.Version = "0"
	assert.Error(t, snap.Validate())
}

func TestGobPersistenceAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	snap := Snapshot(newStub("SimpleNet"))

	require.NoError(t, SaveGob(fs, snap, "ckpt/simulator/params.gob"))

	exists, err := afero.Exists(fs, "ckpt/simulator/params.gob.tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temporary file must be renamed away")

	var loaded NetworkWeights
	require.NoError(t, LoadGob(fs, &loaded, "ckpt/simulator/params.gob"))
	assert.Equal(t, snap, loaded.Clone())
}

func TestLoadGobMissingFile(t *testing.T) {
	var loaded NetworkWeights
	err := LoadGob(afero.NewMemMapFs(), &loaded, "nope.gob")
	assert.Error(t, err)
}
