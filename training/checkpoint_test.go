package training

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/nn"
	"github.com/YuminosukeSato/advnet/optim"
	"github.com/YuminosukeSato/advnet/pkg/errors"
)

func testCheckpoint(t *testing.T) *Checkpoint {
	t.Helper()
	sim, err := nn.NewClassifier(nn.ArchMLPNet, nn.ClassifierConfig{NumClasses: 10, Grid: 2, Hidden: 4, Seed: 1})
	require.NoError(t, err)
	gen, err := nn.NewGenerator(nn.GenNoiseField, nn.GeneratorConfig{NumClasses: 10, Grid: 2, NoiseRange: 10, Seed: 2})
	require.NoError(t, err)

	h := &History{}
	h.AppendSimulator(2.3, 0.1)
	h.AppendSimulator(2.1, 0.2)
	h.AppendGenerator(3.0, 0.01, 0.0, 0.5)
	h.AppendGenerator(2.9, 0.02, 0.5, 1.0)
	h.AppendTest(2.8, 0.5, 0.5)

	return &Checkpoint{
		GlobalStep: 2,
		RunID:      "run-1",
		Simulator: NetworkState{
			Weights:   model.Snapshot(sim),
			Optimizer: optim.AdamState{Step: 4, M: map[string][]float64{"dense0.kernel": {0.1, 0.2}}, V: map[string][]float64{"dense0.kernel": {0.01, 0.02}}},
		},
		Generator: NetworkState{Weights: model.Snapshot(gen), Optimizer: optim.AdamState{Step: 2}},
		History:   h,
	}
}

func writeArchive(t *testing.T, fs afero.Fs, dir string, arrays map[string][]float64) {
	t.Helper()
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	require.NoError(t, model.SaveToWriter(arrays, w))
	require.NoError(t, w.Close())
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, HistoryFile), buf.Bytes(), 0o644))
}

func TestCheckpointRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	assert.False(t, store.Exists())

	want := testCheckpoint(t)
	require.NoError(t, store.Save(want))
	assert.True(t, store.Exists())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, got.GlobalStep)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, want.History, got.History)
	assert.Equal(t, want.Simulator.Weights, got.Simulator.Weights)
	assert.Equal(t, want.Generator.Weights, got.Generator.Weights)
	assert.Equal(t, want.Simulator.Optimizer, got.Simulator.Optimizer)
	assert.Equal(t, 2, got.Generator.Optimizer.Step)

	metaBytes, err := afero.ReadFile(fs, "/ckpt/"+MetadataFile)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, yaml.Unmarshal(metaBytes, &meta))
	assert.Equal(t, "MLPNet", meta.SimulatorArch)
	assert.Equal(t, "NoiseField", meta.GeneratorArch)
	assert.Equal(t, 2, meta.GlobalStep)

	// 一時ファイルは残らない
	exists, err := afero.Exists(fs, "/ckpt/"+HistoryFile+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCheckpointSaveOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	cp := testCheckpoint(t)
	require.NoError(t, store.Save(cp))

	cp.GlobalStep = 4
	cp.History.AppendTest(2.5, 1, 1)
	require.NoError(t, store.Save(cp))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 4, got.GlobalStep)
	assert.Len(t, got.History.TestLoss, 2)
}

func TestCheckpointLoadMissing(t *testing.T) {
	store := NewCheckpointStore(afero.NewMemMapFs(), "/nothing")
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCheckpointNotFound))
	assert.False(t, errors.Is(err, errors.ErrSchemaMismatch))

	var resumeErr *errors.ResumeError
	require.True(t, errors.As(err, &resumeErr))
	assert.Contains(t, resumeErr.Path, "/nothing")
}

func TestCheckpointLoadMissingMandatoryArray(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	require.NoError(t, store.Save(testCheckpoint(t)))

	writeArchive(t, fs, "/ckpt", map[string][]float64{
		keySimulatorLoss:     {1},
		keySimulatorAccuracy: {1},
		keyGeneratorLoss:     {1},
		keyGeneratorPenalty:  {1},
		keyGeneratorTFR:      {1},
		keyTestLoss:          {},
		keyStep:              {1},
	})
	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))
	assert.Contains(t, err.Error(), keyTestTFR)
}

func TestCheckpointLoadFillsOptionalArrays(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	require.NoError(t, store.Save(testCheckpoint(t)))

	writeArchive(t, fs, "/ckpt", map[string][]float64{
		keySimulatorLoss:     {1, 2},
		keySimulatorAccuracy: {0.5, 0.5},
		keyGeneratorLoss:     {3, 4, 5},
		keyGeneratorPenalty:  {0, 0, 0},
		keyGeneratorTFR:      {0, 0, 1},
		keyTestLoss:          {2},
		keyTestTFR:           {1},
		keyStep:              {3},
	})
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, got.GlobalStep)

	require.Len(t, got.History.GeneratorUFR, 3)
	for _, v := range got.History.GeneratorUFR {
		assert.True(t, math.IsNaN(v))
	}
	require.Len(t, got.History.TestUFR, 1)
	assert.True(t, math.IsNaN(got.History.TestUFR[0]))

	require.Len(t, warnings, 2)
	var w *errors.SchemaWarning
	require.True(t, errors.As(warnings[0], &w))
	assert.Equal(t, keyGeneratorUFR, w.Missing)
}

func TestCheckpointLoadRejectsMalformedStep(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	require.NoError(t, store.Save(testCheckpoint(t)))

	arrays := map[string][]float64{}
	for _, name := range mandatoryArrays {
		arrays[name] = []float64{}
	}
	arrays[keyStep] = []float64{1.5}
	writeArchive(t, fs, "/ckpt", arrays)

	_, err := store.Load()
	assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))
}

func TestCheckpointLoadRejectsCorruptWeights(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewCheckpointStore(fs, "/ckpt")
	require.NoError(t, store.Save(testCheckpoint(t)))
	require.NoError(t, afero.WriteFile(fs, "/ckpt/"+SimulatorParamsFile, []byte("not gob"), 0o644))

	_, err := store.Load()
	assert.True(t, errors.Is(err, errors.ErrSchemaMismatch))
}

func TestCheckpointSaveRejectsInconsistentHistory(t *testing.T) {
	store := NewCheckpointStore(afero.NewMemMapFs(), "/ckpt")
	cp := testCheckpoint(t)
	cp.History.TestTFR = nil
	assert.Error(t, store.Save(cp))
	assert.False(t, store.Exists())
}
