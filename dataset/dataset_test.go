package dataset

import (
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
)

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name      string
		gt        LabelSet
		predicted int
		want      bool
	}{
		{"dog lower bound", Dog, 151, true},
		{"dog upper bound", Dog, 275, true},
		{"below dog range", Dog, 150, false},
		{"above dog range", Dog, 276, false},
		{"explicit member", Explicit{3, 7}, 7, true},
		{"explicit non member", Explicit{3, 7}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsCorrect(tt.gt, tt.predicted)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCorrectInvalidShape(t *testing.T) {
	for name, gt := range map[string]LabelSet{
		"nil":      nil,
		"empty":    Explicit{},
		"inverted": AllInRange{Lo: 5, Hi: 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := IsCorrect(gt, 1)
			var shapeErr *errors.InvalidLabelShapeError
			assert.True(t, errors.As(err, &shapeErr))
		})
	}
}

func TestRandomTargetExcludesGroundTruth(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	for _, gt := range []LabelSet{Dog, Explicit{0, 1, 2, 3}, Explicit{999}} {
		for i := 0; i < 2000; i++ {
			target, err := RandomTarget(rng, gt, DefaultLabelSpace)
			require.NoError(t, err)
			assert.False(t, gt.Contains(target), "target %d inside %s", target, gt)
			assert.True(t, target >= 0 && target < DefaultLabelSpace)
		}
	}
}

func TestRandomTargetSingleFreeLabel(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	target, err := RandomTarget(rng, AllInRange{Lo: 1, Hi: 9}, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, target)
}

func TestRandomTargetExhausted(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	_, err := RandomTarget(rng, AllInRange{Lo: 0, Hi: 9}, 10)
	assert.True(t, errors.Is(err, errors.ErrLabelSpaceExhausted))

	// 範囲外のラベルは除外数に数えない
	_, err = RandomTarget(rng, Explicit{0, 1, 1, 2, 50}, 4)
	assert.NoError(t, err)
}

func TestParseLabelSet(t *testing.T) {
	tests := []struct {
		name    string
		record  []string
		want    LabelSet
		wantErr bool
	}{
		{"dog sentinel", []string{"dog"}, Dog, false},
		{"ints keep order", []string{"817", " 511", "436"}, Explicit{817, 511, 436}, false},
		{"trailing comma", []string{"5", ""}, Explicit{5}, false},
		{"non int", []string{"5", "cat"}, nil, true},
		{"dog mixed with ints", []string{"dog", "5"}, nil, true},
		{"dog after ints", []string{"5", "dog"}, nil, true},
		{"empty", []string{}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLabelSet(tt.record)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIndexStreamPermutationWindows(t *testing.T) {
	const n = 7
	s := NewIndexStream(n, rand.New(rand.NewPCG(42, 42)))
	for window := 0; window < 20; window++ {
		seen := make(map[int]int, n)
		for i := 0; i < n; i++ {
			seen[s.Next()]++
		}
		require.Len(t, seen, n)
		for idx, count := range seen {
			assert.Equal(t, 1, count, "index %d in window %d", idx, window)
		}
	}
}

func writePNG(t *testing.T, fs afero.Fs, path string, c color.Color, size int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := fs.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func writeObject(t *testing.T, fs afero.Fs, root, name, labels string, c color.Color) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, fs.MkdirAll(dir, 0o755))
	writePNG(t, fs, filepath.Join(dir, "texture.png"), c, 6)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, LabelsFile), []byte(labels), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, name+".obj"), []byte("v 0 0 0\n"), 0o644))
}

func TestLoaderLoadsSortedObjects(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeObject(t, fs, "/data", "teapot", "849,\n1,2\n", color.NRGBA{R: 255, A: 255})
	writeObject(t, fs, "/data", "dog", "dog\n", color.NRGBA{G: 255, B: 255, A: 255})

	logger, _ := log.NewTestLogger(log.LevelInfo)
	samples, err := NewLoader(fs, 4).WithLogger(logger).Load("/data")
	require.NoError(t, err)
	require.Len(t, samples, 2)

	assert.Equal(t, "dog", samples[0].Name)
	assert.Equal(t, 0, samples[0].Index)
	assert.Equal(t, Dog, samples[0].Labels)
	assert.Equal(t, "/data/dog/dog.obj", samples[0].ObjPath)

	assert.Equal(t, "teapot", samples[1].Name)
	assert.Equal(t, Explicit{849}, samples[1].Labels)
	assert.Equal(t, []int{4, 4, 3}, samples[1].Texture.Shape)
	assert.InDelta(t, 1.0, samples[1].Texture.Data[0], 1.0/255)
	assert.InDelta(t, 0.0, samples[1].Texture.Data[1], 1.0/255)

	assert.True(t, logger.ContainsMessage("dog: labels dog"))
	assert.True(t, logger.ContainsMessage("teapot: labels [849]"))
}

func TestLoaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, fs afero.Fs)
	}{
		{"no texture", func(t *testing.T, fs afero.Fs) {
			require.NoError(t, fs.MkdirAll("/data/a", 0o755))
			require.NoError(t, afero.WriteFile(fs, "/data/a/labels.txt", []byte("dog"), 0o644))
		}},
		{"two textures", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "dog", color.White)
			writePNG(t, fs, "/data/a/other.png", color.Black, 2)
		}},
		{"missing labels", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "dog", color.White)
			require.NoError(t, fs.Remove("/data/a/labels.txt"))
		}},
		{"bad label", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "1,two", color.White)
		}},
		{"dog mixed with ints", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "dog,5", color.White)
		}},
		{"empty labels", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "", color.White)
		}},
		{"corrupt texture", func(t *testing.T, fs afero.Fs) {
			writeObject(t, fs, "/data", "a", "dog", color.White)
			require.NoError(t, afero.WriteFile(fs, "/data/a/texture.png", []byte("not a png"), 0o644))
		}},
		{"empty dataset", func(t *testing.T, fs afero.Fs) {
			require.NoError(t, fs.MkdirAll("/data", 0o755))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			tt.setup(t, fs)
			logger, _ := log.NewTestLogger(log.LevelInfo)
			_, err := NewLoader(fs, 4).WithLogger(logger).Load("/data")

			var dataErr *errors.DataError
			require.True(t, errors.As(err, &dataErr), "got %v", err)
			assert.NotEmpty(t, dataErr.Path)
		})
	}
}

func TestLoaderMissingRootIsConfigError(t *testing.T) {
	_, err := NewLoader(afero.NewMemMapFs(), 4).Load("/nope")

	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "data", cfgErr.Field)
	assert.Equal(t, "/nope", cfgErr.Value)

	var dataErr *errors.DataError
	assert.False(t, errors.As(err, &dataErr))
}

func TestPlanarUVMapper(t *testing.T) {
	m := &PlanarUVMapper{
		Size:           16,
		CameraDistance: [2]float64{1.8, 2.3},
		TranslationX:   [2]float64{-0.05, 0.05},
		TranslationY:   [2]float64{-0.05, 0.05},
	}
	dst := tensor.New(16, 16, 2)
	require.NoError(t, m.Map(dst, nil, rand.New(rand.NewPCG(42, 42))))

	background, object := 0, 0
	for p := 0; p < 16*16; p++ {
		u, v := dst.Data[2*p], dst.Data[2*p+1]
		if u == Background {
			assert.Equal(t, Background, v)
			background++
			continue
		}
		assert.True(t, u >= 0 && u < 1 && v >= 0 && v < 1)
		object++
	}
	assert.Positive(t, background, "corners lie outside the plane")
	assert.Positive(t, object)

	// 中心画素は常に物体上にある
	c := (8*16 + 8) * 2
	assert.NotEqual(t, Background, dst.Data[c])

	bad := &PlanarUVMapper{Size: 16, CameraDistance: [2]float64{3, 1}}
	assert.Error(t, bad.Map(dst, nil, rand.New(rand.NewPCG(1, 1))))
}

func testSamples() []*Sample3D {
	tex := func(v float64) *tensor.Tensor {
		t := tensor.New(4, 4, 3)
		for i := range t.Data {
			t.Data[i] = v
		}
		return t
	}
	return []*Sample3D{
		{Index: 0, Name: "a", Texture: tex(0.2), Labels: Explicit{1, 2}},
		{Index: 1, Name: "b", Texture: tex(0.8), Labels: AllInRange{Lo: 3, Hi: 6}},
	}
}

func TestProviderNextBatch(t *testing.T) {
	mapper := &PlanarUVMapper{Size: 8, CameraDistance: [2]float64{2, 2}}
	p, err := NewProvider(testSamples(), 4, mapper, WithSeed(42), WithLabelSpace(10))
	require.NoError(t, err)

	for step := 0; step < 10; step++ {
		b, err := p.NextBatch()
		require.NoError(t, err)
		require.Equal(t, 4, b.Size())
		assert.Equal(t, []int{4, 4, 4, 3}, b.Textures.Shape)
		assert.Equal(t, []int{4, 8, 8, 2}, b.UVMaps.Shape)
		require.Len(t, b.GroundTruth, 4)
		for i, target := range b.Targets {
			assert.False(t, b.GroundTruth[i].Contains(target))
			s := p.Samples()[b.Objects[i]]
			assert.Equal(t, s.Labels, b.GroundTruth[i])
			assert.Equal(t, s.Texture.Data, b.Textures.Sample(i).Data)
		}
	}
}

func TestNewProviderRejectsUntargetableObject(t *testing.T) {
	samples := testSamples()
	samples[1].Labels = AllInRange{Lo: 0, Hi: 9}
	_, err := NewProvider(samples, 2, &PlanarUVMapper{Size: 4, CameraDistance: [2]float64{2, 2}}, WithLabelSpace(10))

	assert.True(t, errors.Is(err, errors.ErrLabelSpaceExhausted))
	var dataErr *errors.DataError
	assert.True(t, errors.As(err, &dataErr))
}

func TestNewProviderWarnsOnLargeExclusion(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	samples := testSamples()
	samples[1].Labels = AllInRange{Lo: 0, Hi: 7}
	_, err := NewProvider(samples, 2, &PlanarUVMapper{Size: 4, CameraDistance: [2]float64{2, 2}}, WithLabelSpace(10))
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	var w *errors.LabelSpaceWarning
	require.True(t, errors.As(warnings[0], &w))
	assert.Equal(t, "b", w.Object)
}
