package dataset

import (
	"encoding/csv"
	"image"
	_ "image/jpeg" // texture decoder
	_ "image/png"  // texture decoder
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
)

// LabelsFile is the per-object ground truth file.
const LabelsFile = "labels.txt"

// Loader reads a dataset directory from an afero filesystem.
type Loader struct {
	fs          afero.Fs
	textureSize int
	logger      log.Logger
}

// NewLoader creates a loader that resamples every texture to textureSize x textureSize.
func NewLoader(fs afero.Fs, textureSize int) *Loader {
	return &Loader{
		fs:          fs,
		textureSize: textureSize,
		logger:      log.GetLoggerWithName("dataset"),
	}
}

// WithLogger replaces the loader's logger.
func (l *Loader) WithLogger(logger log.Logger) *Loader {
	l.logger = logger
	return l
}

// Load reads every object directory under root in ascending name order.
// An unreadable root is a ConfigError; any missing, duplicated or malformed
// file inside it is a DataError.
func (l *Loader) Load(root string) ([]*Sample3D, error) {
	if l.textureSize <= 0 {
		return nil, errors.NewConfigError("texture_size", "must be positive", l.textureSize)
	}
	entries, err := afero.ReadDir(l.fs, root)
	if err != nil {
		return nil, errors.NewConfigError("data", "dataset directory cannot be listed: "+err.Error(), root)
	}

	var samples []*Sample3D
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		s, err := l.loadObject(filepath.Join(root, entry.Name()), entry.Name(), len(samples))
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
		l.logger.Info(s.String(), log.ObjectKey, s.Name)
	}
	if len(samples) == 0 {
		return nil, errors.NewDataError(root, "", "dataset contains no object directories", errors.ErrEmptyData)
	}
	l.logger.Info("dataset loaded", log.PathKey, root, log.ObjectsKey, len(samples))
	return samples, nil
}

func (l *Loader) loadObject(dir, name string, index int) (*Sample3D, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, errors.NewDataError(dir, name, "cannot list object directory", err)
	}
	var textures []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".png":
			textures = append(textures, e.Name())
		}
	}
	switch len(textures) {
	case 0:
		return nil, errors.NewDataError(dir, name, "no .jpg or .png texture", nil)
	case 1:
	default:
		return nil, errors.NewDataError(dir, name, "multiple textures: "+strings.Join(textures, ", "), nil)
	}

	texPath := filepath.Join(dir, textures[0])
	texture, err := l.readTexture(texPath)
	if err != nil {
		return nil, errors.NewDataError(texPath, name, "cannot decode texture", err)
	}

	labelsPath := filepath.Join(dir, LabelsFile)
	labels, err := l.readLabels(labelsPath)
	if err != nil {
		return nil, errors.NewDataError(labelsPath, name, "malformed labels", err)
	}

	return &Sample3D{
		Index:   index,
		Name:    name,
		Texture: texture,
		ObjPath: filepath.Join(dir, name+".obj"),
		Labels:  labels,
	}, nil
}

// readTexture decodes an image, drops alpha and resamples it to a [T,T,3] tensor in [0,1].
func (l *Loader) readTexture(path string) (*tensor.Tensor, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	size := l.textureSize
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	t := tensor.New(size, size, 3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			o := dst.PixOffset(x, y)
			p := (y*size + x) * 3
			t.Data[p] = float64(dst.Pix[o]) / 255
			t.Data[p+1] = float64(dst.Pix[o+1]) / 255
			t.Data[p+2] = float64(dst.Pix[o+2]) / 255
		}
	}
	return t, nil
}

func (l *Loader) readLabels(path string) (LabelSet, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	record, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("labels.txt is empty")
	}
	if err != nil {
		return nil, err
	}
	return ParseLabelSet(record)
}
