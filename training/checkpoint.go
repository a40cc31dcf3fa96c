package training

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/optim"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
)

// Checkpoint file names relative to the checkpoint directory.
const (
	SimulatorParamsFile = "simulator/params.gob"
	GeneratorParamsFile = "generator/params.gob"
	HistoryFile         = "history.snappy"
	MetadataFile        = "checkpoint.yaml"
)

// mandatory arrays of the history archive. generator_ufr and test_ufr are optional.
var mandatoryArrays = []string{
	keySimulatorLoss, keySimulatorAccuracy,
	keyGeneratorLoss, keyGeneratorPenalty, keyGeneratorTFR,
	keyTestLoss, keyTestTFR, keyStep,
}

// NetworkState is the persisted state of one trainable network.
type NetworkState struct {
	Weights   *model.NetworkWeights
	Optimizer optim.AdamState
}

// Checkpoint is everything needed to continue a run.
type Checkpoint struct {
	// GlobalStep is the last completed cycle.
	GlobalStep int
	RunID      string
	Simulator  NetworkState
	Generator  NetworkState
	History    *History
}

// Metadata is written next to the checkpoint for humans and tooling.
type Metadata struct {
	RunID         string    `yaml:"run_id"`
	GlobalStep    int       `yaml:"global_step"`
	SimulatorArch string    `yaml:"simulator_arch"`
	GeneratorArch string    `yaml:"generator_arch"`
	SavedAt       time.Time `yaml:"saved_at"`
}

// CheckpointStore reads and writes checkpoints in a directory of an afero filesystem.
type CheckpointStore struct {
	fs     afero.Fs
	dir    string
	logger log.Logger
}

// NewCheckpointStore creates a store rooted at dir.
func NewCheckpointStore(fs afero.Fs, dir string) *CheckpointStore {
	return &CheckpointStore{fs: fs, dir: dir, logger: log.GetLoggerWithName("checkpoint")}
}

// Dir returns the checkpoint directory.
func (s *CheckpointStore) Dir() string { return s.dir }

func (s *CheckpointStore) path(name string) string { return filepath.Join(s.dir, name) }

// Save writes cp. Each file is replaced atomically.
func (s *CheckpointStore) Save(cp *Checkpoint) error {
	start := time.Now()
	if err := cp.History.Validate(); err != nil {
		return errors.Wrap(err, "refusing to save inconsistent history")
	}
	if err := model.SaveGob(s.fs, cp.Simulator, s.path(SimulatorParamsFile)); err != nil {
		return errors.Wrap(err, "saving simulator")
	}
	if err := model.SaveGob(s.fs, cp.Generator, s.path(GeneratorParamsFile)); err != nil {
		return errors.Wrap(err, "saving generator")
	}

	meta := Metadata{
		RunID:         cp.RunID,
		GlobalStep:    cp.GlobalStep,
		SimulatorArch: cp.Simulator.Weights.Arch,
		GeneratorArch: cp.Generator.Weights.Arch,
		SavedAt:       time.Now().UTC(),
	}
	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint metadata")
	}
	if err := s.writeAtomic(MetadataFile, metaBytes); err != nil {
		return err
	}

	archive, err := encodeArchive(cp.History, cp.GlobalStep)
	if err != nil {
		return err
	}
	if err := s.writeAtomic(HistoryFile, archive); err != nil {
		return err
	}

	s.logger.Info("checkpoint saved",
		log.PathKey, s.dir,
		log.GlobalStepKey, cp.GlobalStep,
		log.BytesKey, humanize.Bytes(uint64(s.size())),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *CheckpointStore) writeAtomic(name string, data []byte) error {
	target := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(target))
	}
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		return errors.Wrapf(err, "moving %s into place", target)
	}
	return nil
}

// size sums the checkpoint files that exist.
func (s *CheckpointStore) size() int64 {
	var total int64
	for _, name := range []string{SimulatorParamsFile, GeneratorParamsFile, HistoryFile, MetadataFile} {
		if fi, err := s.fs.Stat(s.path(name)); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// Exists reports whether a resumable checkpoint is present.
func (s *CheckpointStore) Exists() bool {
	for _, name := range []string{SimulatorParamsFile, GeneratorParamsFile, HistoryFile} {
		if _, err := s.fs.Stat(s.path(name)); err != nil {
			return false
		}
	}
	return true
}

// Load reads the checkpoint. A missing file is ErrCheckpointNotFound; an
// undecodable file or a missing mandatory array is ErrSchemaMismatch.
func (s *CheckpointStore) Load() (*Checkpoint, error) {
	for _, name := range []string{SimulatorParamsFile, GeneratorParamsFile, HistoryFile} {
		if _, err := s.fs.Stat(s.path(name)); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewResumeError(s.path(name), errors.ErrCheckpointNotFound, nil)
			}
			return nil, errors.NewResumeError(s.path(name), errors.ErrCheckpointNotFound, err)
		}
	}

	cp := &Checkpoint{}
	if err := model.LoadGob(s.fs, &cp.Simulator, s.path(SimulatorParamsFile)); err != nil {
		return nil, errors.NewResumeError(s.path(SimulatorParamsFile), errors.ErrSchemaMismatch, err)
	}
	if err := model.LoadGob(s.fs, &cp.Generator, s.path(GeneratorParamsFile)); err != nil {
		return nil, errors.NewResumeError(s.path(GeneratorParamsFile), errors.ErrSchemaMismatch, err)
	}
	for _, st := range []struct {
		file string
		ns   NetworkState
	}{{SimulatorParamsFile, cp.Simulator}, {GeneratorParamsFile, cp.Generator}} {
		if st.ns.Weights == nil {
			return nil, errors.NewResumeError(s.path(st.file), errors.ErrSchemaMismatch, errors.New("no weights"))
		}
		if err := st.ns.Weights.Validate(); err != nil {
			return nil, errors.NewResumeError(s.path(st.file), errors.ErrSchemaMismatch, err)
		}
	}

	data, err := afero.ReadFile(s.fs, s.path(HistoryFile))
	if err != nil {
		return nil, errors.NewResumeError(s.path(HistoryFile), errors.ErrCheckpointNotFound, err)
	}
	cp.History, cp.GlobalStep, err = s.decodeArchive(data)
	if err != nil {
		return nil, err
	}

	if metaBytes, err := afero.ReadFile(s.fs, s.path(MetadataFile)); err == nil {
		var meta Metadata
		if err := yaml.Unmarshal(metaBytes, &meta); err == nil {
			cp.RunID = meta.RunID
		}
	}

	s.logger.Info("checkpoint loaded",
		log.PathKey, s.dir,
		log.GlobalStepKey, cp.GlobalStep,
		log.BytesKey, humanize.Bytes(uint64(s.size())),
	)
	return cp, nil
}

// encodeArchive stores the named history arrays plus the step as a
// snappy-compressed gob map.
func encodeArchive(h *History, globalStep int) ([]byte, error) {
	arrays := make(map[string][]float64, 10)
	for name, series := range h.arrays() {
		arrays[name] = append([]float64{}, *series...)
	}
	arrays[keyStep] = []float64{float64(globalStep)}

	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if err := model.SaveToWriter(arrays, w); err != nil {
		return nil, errors.Wrap(err, "encoding history archive")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "compressing history archive")
	}
	return buf.Bytes(), nil
}

func (s *CheckpointStore) decodeArchive(data []byte) (*History, int, error) {
	path := s.path(HistoryFile)
	var arrays map[string][]float64
	if err := model.LoadFromReader(&arrays, snappy.NewReader(bytes.NewReader(data))); err != nil {
		return nil, 0, errors.NewResumeError(path, errors.ErrSchemaMismatch, err)
	}
	for _, name := range mandatoryArrays {
		if _, ok := arrays[name]; !ok {
			return nil, 0, errors.NewResumeError(path, errors.ErrSchemaMismatch, errors.Newf("missing array %q", name))
		}
	}
	step := arrays[keyStep]
	if len(step) != 1 || step[0] < 0 || step[0] != float64(int(step[0])) {
		return nil, 0, errors.NewResumeError(path, errors.ErrSchemaMismatch, errors.Newf("malformed step array %v", step))
	}

	h := &History{}
	for name, series := range h.arrays() {
		*series = arrays[name]
	}
	// 任意配列が無い古いアーカイブは NaN で長さを揃える
	fill := func(name string, dst *[]float64, n int) {
		if _, ok := arrays[name]; ok {
			return
		}
		errors.Warn(errors.NewSchemaWarning(path, name, "filled with NaN"))
		*dst = nanSlice(n)
	}
	fill(keyGeneratorUFR, &h.GeneratorUFR, len(h.GeneratorLoss))
	fill(keyTestUFR, &h.TestUFR, len(h.TestLoss))

	if err := h.Validate(); err != nil {
		return nil, 0, errors.NewResumeError(path, errors.ErrSchemaMismatch, err)
	}
	return h, int(step[0]), nil
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
