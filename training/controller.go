// Package training implements the alternating simulator/generator training
// protocol: warm-up of the simulator against the oracle, cycles of simulator
// and generator updates, periodic validation against the oracle and
// resumable checkpoints.
package training

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/advnet/core/model"
	"github.com/YuminosukeSato/advnet/core/tensor"
	"github.com/YuminosukeSato/advnet/dataset"
	"github.com/YuminosukeSato/advnet/metrics"
	"github.com/YuminosukeSato/advnet/optim"
	"github.com/YuminosukeSato/advnet/oracle"
	"github.com/YuminosukeSato/advnet/pkg/errors"
	"github.com/YuminosukeSato/advnet/pkg/log"
	"github.com/YuminosukeSato/advnet/preprocessing"
	"github.com/YuminosukeSato/advnet/render"
)

// GradientClip bounds every generator gradient element before the update.
const GradientClip = 1.0

// BatchSource supplies training or validation batches.
type BatchSource interface {
	NextBatch() (*dataset.Batch, error)
}

// Controller owns the training state: both networks, their optimizers, the
// history and the global step. It is driven by a single goroutine; only
// Status may be read concurrently.
type Controller struct {
	hp        HyperParameters
	simulator model.Classifier
	generator model.PerturbationGenerator
	oracle    oracle.Oracle
	renderer  render.Renderer
	sampler   *render.Sampler
	lab       render.LabConverter
	scaler    *preprocessing.RangeScaler
	train     BatchSource
	test      BatchSource

	simOpt *optim.Adam
	genOpt *optim.Adam

	history        *History
	completed      int
	resumed        bool
	warmupAccuracy float64

	store     *CheckpointStore
	metrics   *Metrics
	callbacks *CallbackList
	status    *Status
	logger    log.Logger
	runID     string
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithCheckpointStore enables checkpointing at validation boundaries and Resume.
func WithCheckpointStore(store *CheckpointStore) Option {
	return func(c *Controller) { c.store = store }
}

// WithMetrics exports progress to Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTestSource draws validation batches from src instead of the training source.
func WithTestSource(src BatchSource) Option {
	return func(c *Controller) { c.test = src }
}

// WithRenderer replaces the reference UVRenderer.
func WithRenderer(r render.Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// WithCallbacks adds callbacks run after every cycle.
func WithCallbacks(callbacks ...Callback) Option {
	return func(c *Controller) { c.callbacks.Add(callbacks...) }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(c *Controller) { c.runID = id }
}

// NewController validates hp and prepares a cold start: fresh optimizers
// and an empty history.
func NewController(hp HyperParameters, simulator model.Classifier, generator model.PerturbationGenerator,
	orc oracle.Oracle, train BatchSource, opts ...Option) (*Controller, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	switch {
	case simulator == nil:
		return nil, errors.NewConfigError("simulator", "required", nil)
	case generator == nil:
		return nil, errors.NewConfigError("generator", "required", nil)
	case orc == nil:
		return nil, errors.NewConfigError("oracle", "required", nil)
	case train == nil:
		return nil, errors.NewConfigError("data", "training batch source required", nil)
	}

	simSchedule, err := hp.SimulatorLearningRate.Schedule()
	if err != nil {
		return nil, err
	}
	genSchedule, err := hp.GeneratorLearningRate.Schedule()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		hp:        hp,
		simulator: simulator,
		generator: generator,
		oracle:    orc,
		renderer:  render.NewUVRenderer(),
		sampler:   render.NewSampler(hp.Distortion(), hp.Seed),
		scaler:    preprocessing.SignedUnit(),
		train:     train,
		test:      train,
		simOpt:    optim.NewAdam(simSchedule),
		genOpt:    optim.NewAdam(genSchedule),
		history:   &History{},
		callbacks: NewCallbackList(),
		status:    &Status{},
		logger:    log.GetLoggerWithName("training"),
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(log.RunIDKey, c.runID, log.ArchKey, simulator.Name())
	c.status.setRunID(c.runID)
	c.setPhase(PhaseColdStart)
	return c, nil
}

// Status returns the concurrently readable status.
func (c *Controller) Status() *Status { return c.status }

// History returns a copy of the recorded history.
func (c *Controller) History() *History { return c.history.Clone() }

// GlobalStep returns the last completed cycle (0 before the first).
func (c *Controller) GlobalStep() int { return c.completed }

// WarmupAccuracy returns the mean simulator/oracle agreement measured after warm-up.
func (c *Controller) WarmupAccuracy() float64 { return c.warmupAccuracy }

// RunID returns the id attached to logs and checkpoints.
func (c *Controller) RunID() string { return c.runID }

func (c *Controller) setPhase(p Phase) {
	c.status.set(p, c.completed)
	c.metrics.setPhase(p, c.completed)
}

// Resume restores networks, optimizer state, history and global step from
// the checkpoint store. Warm-up is skipped by a resumed Run. A missing
// checkpoint is a ResumeError; there is no fallback to a cold start.
func (c *Controller) Resume() error {
	if c.store == nil {
		return errors.NewConfigError("checkpoints", "resume requires a checkpoint store", nil)
	}
	c.setPhase(PhaseResuming)
	c.logger.Info("resuming", log.PathKey, c.store.Dir(), log.OperationKey, log.OperationResume)

	cp, err := c.store.Load()
	if err != nil {
		return err
	}
	if err := model.Restore(c.simulator, cp.Simulator.Weights); err != nil {
		return errors.NewResumeError(c.store.Dir(), errors.ErrSchemaMismatch, err)
	}
	if err := model.Restore(c.generator, cp.Generator.Weights); err != nil {
		return errors.NewResumeError(c.store.Dir(), errors.ErrSchemaMismatch, err)
	}
	if err := c.simOpt.SetState(cp.Simulator.Optimizer); err != nil {
		return errors.NewResumeError(c.store.Dir(), errors.ErrSchemaMismatch, err)
	}
	if err := c.genOpt.SetState(cp.Generator.Optimizer); err != nil {
		return errors.NewResumeError(c.store.Dir(), errors.ErrSchemaMismatch, err)
	}

	c.history = cp.History
	c.completed = cp.GlobalStep
	c.resumed = true
	c.logger.Info("resumed",
		log.GlobalStepKey, c.completed,
		"previous_run", cp.RunID,
		log.LearningRateKey, c.genOpt.LearningRate(),
	)
	return nil
}

// Run trains until GlobalStep reaches TotalSteps, a callback stops the run
// or an error occurs. Cancellation is checked between sub-steps.
func (c *Controller) Run(ctx context.Context) error {
	if !c.resumed {
		if err := c.warmUp(ctx); err != nil {
			return err
		}
	}

	c.setPhase(PhaseCycling)
	c.logger.Info("training started", log.GlobalStepKey, c.completed+1, "total_steps", c.hp.TotalSteps)
	for step := c.completed + 1; step <= c.hp.TotalSteps; step++ {
		begin := time.Now()
		c.status.set(PhaseCycling, step)
		c.metrics.setPhase(PhaseCycling, step)

		results, err := c.cycle(ctx, step)
		if err != nil {
			return err
		}

		if step%c.hp.ValidateAfter == 0 {
			if err := c.validate(ctx, step, results); err != nil {
				return err
			}
			c.completed = step
			if err := c.checkpoint(); err != nil {
				return err
			}
			c.setPhase(PhaseCycling)
		}
		c.completed = step

		if err := c.callbacks.AfterCycle(step, c.history, results, begin); err != nil {
			return errors.Wrapf(err, "callback at step %d", step)
		}
		if c.callbacks.ShouldStop() {
			c.logger.Info("training stopped by callback", log.GlobalStepKey, step)
			break
		}
	}

	c.setPhase(PhaseDone)
	c.logger.Info("training finished", log.GlobalStepKey, c.completed)
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// warmUp trains the simulator alone on clean renders, then measures its
// agreement with the oracle. Nothing is recorded in the history.
func (c *Controller) warmUp(ctx context.Context) error {
	c.setPhase(PhaseWarmingUp)
	c.logger.Info("warming up simulator", log.OperationKey, log.OperationWarmup, "steps", c.hp.WarmupSteps)

	for i := 0; i < c.hp.WarmupSteps; i++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		batch, err := c.nextBatch(c.train)
		if err != nil {
			return err
		}
		clean, err := c.render(batch.Textures, batch.UVMaps)
		if err != nil {
			return err
		}
		loss, acc, err := c.simulatorStep(clean.Images, 0)
		if err != nil {
			return err
		}
		c.logger.Debug("warm-up step", log.WarmupStepKey, i+1, log.LossKey, loss, log.AccuracyKey, acc)
	}

	if c.hp.WarmupEvaluationSteps == 0 {
		return nil
	}
	sum := 0.0
	for i := 0; i < c.hp.WarmupEvaluationSteps; i++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		batch, err := c.nextBatch(c.train)
		if err != nil {
			return err
		}
		clean, err := c.render(batch.Textures, batch.UVMaps)
		if err != nil {
			return err
		}
		acc, err := c.agreement(clean.Images)
		if err != nil {
			return err
		}
		sum += acc
	}
	c.warmupAccuracy = sum / float64(c.hp.WarmupEvaluationSteps)
	c.logger.Info("warm-up finished", log.AccuracyKey, c.warmupAccuracy)
	return nil
}

// cycle runs the simulator phase then the generator phase of one global step.
func (c *Controller) cycle(ctx context.Context, step int) (map[string]float64, error) {
	results := make(map[string]float64, 6)

	for i := 0; i < c.hp.SimulatorSteps; i++ {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		batch, err := c.nextBatch(c.train)
		if err != nil {
			return nil, err
		}
		clean, err := c.render(batch.Textures, batch.UVMaps)
		if err != nil {
			return nil, err
		}
		if _, _, err := c.simulatorStep(clean.Images, step); err != nil {
			return nil, err
		}

		adv, _, err := c.adversarial(batch.Textures, batch.Targets, false)
		if err != nil {
			return nil, err
		}
		advRendering, err := c.render(adv, batch.UVMaps)
		if err != nil {
			return nil, err
		}
		loss, acc, err := c.simulatorStep(advRendering.Images, step)
		if err != nil {
			return nil, err
		}
		c.history.AppendSimulator(loss, acc)
		results[keySimulatorLoss] = loss
		results[keySimulatorAccuracy] = acc
	}

	for i := 0; i < c.hp.GeneratorSteps; i++ {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		batch, err := c.nextBatch(c.train)
		if err != nil {
			return nil, err
		}
		r, err := c.generatorStep(batch, step)
		if err != nil {
			return nil, err
		}
		c.history.AppendGenerator(r.loss, r.penalty, r.tfr, r.ufr)
		results[keyGeneratorLoss] = r.loss
		results[keyGeneratorPenalty] = r.penalty
		results[keyGeneratorTFR] = r.tfr
		results[keyGeneratorUFR] = r.ufr
	}

	c.logger.Debug("cycle finished", log.GlobalStepKey, step)
	return results, nil
}

// simulatorStep fits the simulator to the oracle's hard labels on images in [0,1].
func (c *Controller) simulatorStep(images *tensor.Tensor, step int) (float64, float64, error) {
	x := c.scaler.Transform(images)
	oracleLogits, err := c.classify(x, step)
	if err != nil {
		return 0, 0, err
	}
	oracleLabels := metrics.Argmax(oracleLogits)

	c.simulator.ZeroGrad()
	logits, err := c.simulator.Forward(x, true)
	if err != nil {
		return 0, 0, errors.Wrap(err, "simulator forward")
	}
	ce, dLogits, err := metrics.MeanCrossEntropy(logits, oracleLabels)
	if err != nil {
		return 0, 0, errors.Wrap(err, "simulator loss")
	}
	loss := ce + c.simulator.RegularizationPenalty()
	if err := errors.CheckScalar("simulator loss", loss, step); err != nil {
		return 0, 0, err
	}

	if err := c.simulator.Backward(dLogits); err != nil {
		return 0, 0, errors.Wrap(err, "simulator backward")
	}
	c.simulator.AccumulateRegularizationGrad()
	if err := c.simOpt.Step(c.simulator.Params()); err != nil {
		return 0, 0, errors.Wrap(err, "simulator update")
	}

	acc, err := metrics.Accuracy(oracleLabels, metrics.Argmax(logits))
	if err != nil {
		return 0, 0, err
	}
	c.metrics.observeSimulator(loss, acc, c.simOpt.LearningRate())
	return loss, acc, nil
}

// agreement measures simulator/oracle top-1 agreement without gradients.
func (c *Controller) agreement(images *tensor.Tensor) (float64, error) {
	x := c.scaler.Transform(images)
	oracleLogits, err := c.classify(x, 0)
	if err != nil {
		return 0, err
	}
	logits, err := c.simulator.Forward(x, false)
	if err != nil {
		return 0, errors.Wrap(err, "simulator forward")
	}
	return metrics.Accuracy(metrics.Argmax(oracleLogits), metrics.Argmax(logits))
}

type generatorResult struct {
	loss, penalty, tfr, ufr float64
}

// generatorStep updates the generator through the renderer and the frozen
// simulator, then scores the adversarial images on the oracle.
func (c *Controller) generatorStep(batch *dataset.Batch, step int) (generatorResult, error) {
	var r generatorResult

	c.generator.ZeroGrad()
	adv, unclamped, err := c.adversarial(batch.Textures, batch.Targets, true)
	if err != nil {
		return r, err
	}

	params := c.sampler.Draw(batch.Size())
	std, err := c.renderWith(batch.Textures, batch.UVMaps, params)
	if err != nil {
		return r, err
	}
	advRendering, err := c.renderWith(adv, batch.UVMaps, params)
	if err != nil {
		return r, err
	}

	x := c.scaler.Transform(advRendering.Images)
	logits, err := c.simulator.Forward(x, false)
	if err != nil {
		return r, errors.Wrap(err, "simulator forward")
	}
	mainLoss, dLogits, err := metrics.MeanCrossEntropy(logits, batch.Targets)
	if err != nil {
		return r, errors.Wrap(err, "generator loss")
	}
	dx, err := c.simulator.InputGradient(dLogits)
	if err != nil {
		return r, errors.Wrap(err, "simulator input gradient")
	}
	dImages := dx.Scale(c.scaler.Scale())

	dist, dPenalty, err := c.perceptualDistance(advRendering.Images, std.Images)
	if err != nil {
		return r, err
	}
	penalty := c.hp.PenaltyWeight * dist
	dImages.AddScaled(c.hp.PenaltyWeight, dPenalty)

	loss := mainLoss + penalty + c.generator.RegularizationPenalty()
	if err := errors.CheckScalar("generator loss", loss, step); err != nil {
		return r, err
	}

	dTex, err := advRendering.Backward(dImages)
	if err != nil {
		return r, errors.Wrap(err, "renderer backward")
	}
	for i, ok := range unclamped {
		if !ok {
			dTex.Data[i] = 0
		}
	}
	if err := c.generator.Backward(dTex.Scale(1.0 / 255)); err != nil {
		return r, errors.Wrap(err, "generator backward")
	}
	c.generator.AccumulateRegularizationGrad()
	optim.ClipGradients(c.generator.Params(), -GradientClip, GradientClip)
	if err := c.genOpt.Step(c.generator.Params()); err != nil {
		return r, errors.Wrap(err, "generator update")
	}

	oracleLogits, err := c.classify(x, step)
	if err != nil {
		return r, err
	}
	r.loss, r.penalty = mainLoss, penalty
	r.tfr, r.ufr, err = foolRates(batch, metrics.Argmax(oracleLogits))
	if err != nil {
		return r, err
	}
	c.metrics.observeGenerator(r.loss, r.penalty, r.tfr, r.ufr, c.genOpt.LearningRate())
	return r, nil
}

// perceptualDistance returns the mean per-sample L2 distance between adv and
// std (in normalised CIELAB when LabPenalty is set) and its gradient wrt adv.
func (c *Controller) perceptualDistance(adv, std *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if !c.hp.LabPenalty {
		return metrics.MeanL2Distance(adv, std)
	}
	dist, dLab, err := metrics.MeanL2Distance(c.lab.Convert(adv), c.lab.Convert(std))
	if err != nil {
		return 0, nil, err
	}
	return dist, c.lab.Backward(adv, dLab), nil
}

// validate evaluates the generator against the oracle on TestSteps batches
// and appends the means to the history.
func (c *Controller) validate(ctx context.Context, step int, results map[string]float64) error {
	c.status.set(PhaseValidating, step)
	c.metrics.setPhase(PhaseValidating, step)
	if c.hp.TestSteps == 0 {
		return nil
	}

	var sumLoss, sumTFR, sumUFR float64
	for i := 0; i < c.hp.TestSteps; i++ {
		if err := checkContext(ctx); err != nil {
			return err
		}
		batch, err := c.nextBatch(c.test)
		if err != nil {
			return err
		}
		adv, _, err := c.adversarial(batch.Textures, batch.Targets, false)
		if err != nil {
			return err
		}
		rendering, err := c.render(adv, batch.UVMaps)
		if err != nil {
			return err
		}
		logits, err := c.classify(c.scaler.Transform(rendering.Images), step)
		if err != nil {
			return err
		}
		loss, _, err := metrics.MeanCrossEntropy(logits, batch.Targets)
		if err != nil {
			return errors.Wrap(err, "test loss")
		}
		tfr, ufr, err := foolRates(batch, metrics.Argmax(logits))
		if err != nil {
			return err
		}
		sumLoss += loss
		sumTFR += tfr
		sumUFR += ufr
	}

	n := float64(c.hp.TestSteps)
	loss, tfr, ufr := sumLoss/n, sumTFR/n, sumUFR/n
	c.history.AppendTest(loss, tfr, ufr)
	results[keyTestLoss] = loss
	results[keyTestTFR] = tfr
	results[keyTestUFR] = ufr
	c.metrics.observeTest(loss, tfr, ufr)
	c.logger.Info("validation finished",
		log.OperationKey, log.OperationValidation,
		log.GlobalStepKey, step,
		log.LossKey, loss,
		log.TFRKey, tfr,
		log.UFRKey, ufr,
	)
	return nil
}

func (c *Controller) checkpoint() error {
	if c.store == nil {
		return nil
	}
	cp := &Checkpoint{
		GlobalStep: c.completed,
		RunID:      c.runID,
		Simulator:  NetworkState{Weights: model.Snapshot(c.simulator), Optimizer: c.simOpt.State()},
		Generator:  NetworkState{Weights: model.Snapshot(c.generator), Optimizer: c.genOpt.State()},
		History:    c.history.Clone(),
	}
	if err := c.store.Save(cp); err != nil {
		return errors.Wrapf(err, "checkpoint at step %d", c.completed)
	}
	c.metrics.observeCheckpoint()
	return nil
}

// adversarial returns clamp(textures + noise/255, 0, 1) and, per element,
// whether the sum was inside [0,1] before clamping.
func (c *Controller) adversarial(textures *tensor.Tensor, targets []int, training bool) (*tensor.Tensor, []bool, error) {
	noise, err := c.generator.Forward(c.scaler.Transform(textures), targets, training)
	if err != nil {
		return nil, nil, errors.Wrap(err, "generator forward")
	}
	if !noise.SameShape(textures) {
		return nil, nil, errors.NewValueError("generator", "noise shape "+noise.String()+" does not match "+textures.String())
	}
	adv := textures.Clone().AddScaled(1.0/255, noise)
	unclamped := make([]bool, adv.Len())
	for i, v := range adv.Data {
		unclamped[i] = v >= 0 && v <= 1
	}
	return adv.Clamp(0, 1), unclamped, nil
}

func (c *Controller) nextBatch(src BatchSource) (*dataset.Batch, error) {
	batch, err := src.NextBatch()
	if err != nil {
		return nil, errors.Wrap(err, "next batch")
	}
	return batch, nil
}

// render draws fresh distortions and renders.
func (c *Controller) render(textures, uvMaps *tensor.Tensor) (*render.Rendering, error) {
	return c.renderWith(textures, uvMaps, c.sampler.Draw(textures.Batch()))
}

func (c *Controller) renderWith(textures, uvMaps *tensor.Tensor, params render.Params) (*render.Rendering, error) {
	var out *render.Rendering
	err := errors.SafeExecute("renderer.Render", func() error {
		var err error
		out, err = c.renderer.Render(textures, uvMaps, params)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "render")
	}
	return out, nil
}

// classify queries the oracle. Non-finite logits are reported with step.
func (c *Controller) classify(images *tensor.Tensor, step int) (*mat.Dense, error) {
	var logits *mat.Dense
	err := errors.SafeExecute("oracle.Classify", func() error {
		var err error
		logits, err = c.oracle.Classify(images)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "oracle")
	}
	if logits == nil {
		return nil, errors.NewValueError("oracle.Classify", "returned no logits")
	}
	r, cols := logits.Dims()
	if r != images.Batch() {
		return nil, errors.NewDimensionError("oracle.Classify", images.Batch(), r, 0)
	}
	if err := errors.CheckMatrix("oracle logits", logits, r, cols, step); err != nil {
		return nil, err
	}
	return logits, nil
}

// foolRates returns the targeted and untargeted fool rates of predictions.
func foolRates(batch *dataset.Batch, predicted []int) (float64, float64, error) {
	tfr, err := metrics.TargetedFoolRate(batch.Targets, predicted)
	if err != nil {
		return 0, 0, err
	}
	ufr, err := metrics.UntargetedFoolRate(predicted, func(i, pred int) (bool, error) {
		return dataset.IsCorrect(batch.GroundTruth[i], pred)
	})
	if err != nil {
		return 0, 0, err
	}
	return tfr, ufr, nil
}
