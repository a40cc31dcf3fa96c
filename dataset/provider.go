package dataset

import (
	"math/rand/v2"

	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
)

// Provider assembles training batches from a loaded dataset. It is pull
// based and not safe for concurrent use.
type Provider struct {
	samples    []*Sample3D
	batchSize  int
	labelSpace int
	mapper     UVMapper
	stream     *IndexStream
	rng        *rand.Rand
	logger     log.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithSeed seeds object selection, target sampling and pose draws.
func WithSeed(seed uint64) ProviderOption {
	return func(p *Provider) {
		p.rng = rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	}
}

// WithLabelSpace sets the number of oracle classes targets are drawn from.
func WithLabelSpace(n int) ProviderOption {
	return func(p *Provider) { p.labelSpace = n }
}

// WithProviderLogger sets the logger.
func WithProviderLogger(logger log.Logger) ProviderOption {
	return func(p *Provider) { p.logger = logger }
}

// NewProvider validates the dataset against the label space and returns a
// provider of batches of batchSize entries. An object whose ground truth
// covers the whole label space is rejected with ErrLabelSpaceExhausted.
func NewProvider(samples []*Sample3D, batchSize int, mapper UVMapper, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{
		samples:    samples,
		batchSize:  batchSize,
		labelSpace: DefaultLabelSpace,
		mapper:     mapper,
		logger:     log.GetLoggerWithName("dataset"),
	}
	WithSeed(0)(p)
	for _, opt := range opts {
		opt(p)
	}

	if len(samples) == 0 {
		return nil, errors.WithStack(errors.ErrEmptyData)
	}
	if batchSize <= 0 {
		return nil, errors.NewConfigError("batch_size", "must be positive", batchSize)
	}
	if mapper == nil || mapper.ImageSize() <= 0 {
		return nil, errors.NewConfigError("image_size", "UV mapper must produce a positive image size", mapper)
	}

	texShape := samples[0].Texture.Shape
	for _, s := range samples {
		if err := s.Texture.RequireShape("NewProvider", texShape...); err != nil {
			return nil, errors.NewDataError(s.ObjPath, s.Name, "texture size differs from the first object", err)
		}
		if err := CheckTargetable(s.Labels, p.labelSpace); err != nil {
			return nil, errors.NewDataError(s.ObjPath, s.Name, "no target label available", err)
		}
		if excluded := s.Labels.Excluded(p.labelSpace); excluded*2 > p.labelSpace {
			errors.Warn(errors.NewLabelSpaceWarning(s.Name, excluded, p.labelSpace))
		}
	}
	p.stream = NewIndexStream(len(samples), p.rng)
	return p, nil
}

// Samples returns the objects the provider draws from.
func (p *Provider) Samples() []*Sample3D { return p.samples }

// BatchSize returns the number of entries per batch.
func (p *Provider) BatchSize() int { return p.batchSize }

// NextBatch draws batchSize objects, poses each one and samples a target
// label outside its ground truth. It never returns a partial batch.
func (p *Provider) NextBatch() (*Batch, error) {
	t := p.samples[0].Texture.Shape[0]
	size := p.mapper.ImageSize()
	b := &Batch{
		Textures:    tensor.New(p.batchSize, t, t, 3),
		UVMaps:      tensor.New(p.batchSize, size, size, 2),
		GroundTruth: make([]LabelSet, p.batchSize),
		Targets:     make([]int, p.batchSize),
		Objects:     make([]int, p.batchSize),
	}
	for i := 0; i < p.batchSize; i++ {
		s := p.samples[p.stream.Next()]
		copy(b.Textures.Sample(i).Data, s.Texture.Data)
		if err := p.mapper.Map(b.UVMaps.Sample(i), s, p.rng); err != nil {
			return nil, errors.Wrapf(err, "posing object %s", s.Name)
		}
		target, err := RandomTarget(p.rng, s.Labels, p.labelSpace)
		if err != nil {
			return nil, errors.Wrapf(err, "target for object %s", s.Name)
		}
		b.GroundTruth[i] = s.Labels
		b.Targets[i] = target
		b.Objects[i] = s.Index
	}
	return b, nil
}
