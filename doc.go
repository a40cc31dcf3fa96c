// Package advnet trains a perturbation generator that produces adversarial
// textures for 3D objects. The textures are rendered under random poses and
// physical distortions and fool a black-box image classifier (the oracle),
// either towards a chosen target label or away from the object's true labels.
//
// Because the oracle exposes no gradients, a differentiable simulator network
// is trained to imitate it, and the generator is trained through the
// simulator and the renderer.
//
// # Training protocol
//
// After a warm-up in which only the simulator learns the oracle's labels on
// clean renders, every global step runs
//
//   - SimulatorSteps simulator updates, each on a clean then an adversarial render
//   - GeneratorSteps generator updates with a perceptual penalty (CIELAB L2)
//   - every ValidateAfter steps, TestSteps oracle evaluations and a checkpoint
//
// A run resumes from its checkpoint with the same global step, optimizer
// state and history.
//
// # Quick Start
//
//	advnet train --arch SimpleNet --data ./data --oracle-weights oracle.gob \
//	    --checkpoints ./ckpt --metrics-addr :9090
//	advnet plot --checkpoints ./ckpt --out history.png
//
// Or programmatically:
//
//	samples, err := dataset.NewLoader(afero.NewOsFs(), hp.TextureSize).Load("data")
//	provider, err := dataset.NewProvider(samples, hp.BatchSize, hp.UVMapper())
//	ctrl, err := training.NewController(hp, simulator, generator, oracle, provider,
//	    training.WithCheckpointStore(training.NewCheckpointStore(fs, "ckpt")),
//	)
//	err = ctrl.Run(ctx)
//
// # Packages
//
//   - dataset: object loading, label sets, target sampling, UV maps, batches
//   - render: differentiable UV renderer, distortion sampling, CIELAB conversion
//   - oracle: the black-box classifier contract, frozen and TensorFlow oracles
//   - nn: simulator architectures and perturbation generators
//   - optim: Adam with exponential learning-rate decay
//   - metrics: cross-entropy, accuracy, fool rates, L2 distance
//   - training: controller, history, checkpoints, Prometheus metrics, plots
//   - core/model, core/tensor, core/parallel: shared contracts and utilities
//   - pkg/errors, pkg/log: typed errors and structured logging
package advnet
