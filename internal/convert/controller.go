// Package convert decides which resolved inputs of an instance get converted
// to NIfTI, by which engine, and records what happened to each of them.
package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"niftiwork/internal/engine"
	fileutil "niftiwork/internal/file"
	"niftiwork/internal/instance"
	"niftiwork/internal/metrics"
)

type Options struct {
	Engine    engine.Engine
	Policy    Policy
	Verbosity engine.Verbosity
	Adapters  []engine.Adapter
}

// Controller runs one batch at a time, strictly in sequence.
type Controller struct {
	engine    engine.Engine
	policy    Policy
	verbosity engine.Verbosity
	adapters  map[engine.Engine]engine.Adapter
}

func NewController(opts Options) *Controller {
	adapters := make(map[engine.Engine]engine.Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Engine()] = a
	}
	return &Controller{
		engine:    opts.Engine,
		policy:    opts.Policy,
		verbosity: opts.Verbosity,
		adapters:  adapters,
	}
}

func (c *Controller) Engine() engine.Engine { return c.engine }
func (c *Controller) Policy() Policy        { return c.policy }

// Run converts the batch of one instance. Expected conditions (nothing to
// convert, output already present) are reported and yield a nil error. A
// returned error is fatal for the whole batch: the remaining items are not
// attempted.
func (c *Controller) Run(ctx context.Context, inst *instance.Instance, batch Batch) (*Report, error) {
	if len(batch.Outputs) != batch.Len() || len(batch.Logs) != batch.Len() {
		return nil, fmt.Errorf("%w: %d inputs, %d outputs, %d logs",
			ErrMisaligned, batch.Len(), len(batch.Outputs), len(batch.Logs))
	}

	report := &Report{Instance: inst.ID, Engine: c.engine, Items: []ItemResult{}}
	logger := log.With().Str("instance", inst.ID).Str("engine", string(c.engine)).Logger()

	if batch.Len() == 0 {
		report.Error = fmt.Sprintf("%s in instance %s", ErrNoMatchingData, inst.ID)
		logger.Error().Msg("convert: no matching data found")
		return report, nil
	}

	if !c.policy.AllowMultiInput && batch.Len() > 1 {
		report.Dropped = batch.Len() - 1
		logger.Warn().Int("found", batch.Len()).
			Msg("more than one matching file but multi input is disabled; only the first file will be converted")
		batch = Batch{Inputs: batch.Inputs[:1], Outputs: batch.Outputs[:1], Logs: batch.Logs[:1]}
	}

	for i := range batch.Inputs {
		item, err := c.runItem(ctx, i, batch.Inputs[i], batch.Outputs[i], batch.Logs[i])
		report.Items = append(report.Items, item)
		metrics.RecordItem(string(item.Engine), string(item.State))
		if err != nil {
			report.Error = err.Error()
			logger.Error().Err(err).Int("index", i).Str("input", item.Input).Msg("convert: fatal")
			return report, err
		}
	}
	return report, nil
}

func (c *Controller) runItem(ctx context.Context, idx int, in, out, logArt *instance.Artifact) (ItemResult, error) {
	item := ItemResult{Index: idx, Input: in.AbsPath(), Output: out.AbsPath(), State: StatePending}
	if logArt != nil {
		item.Log = logArt.AbsPath()
	}

	if fileutil.IsFile(out.AbsPath()) && !c.policy.OverwriteExistingFile {
		item.State = StateSkipped
		item.Message = ErrAlreadyExists.Error()
		log.Warn().Str("output", item.Output).Msg("convert: file already exists, skipped")
		return item, nil
	}

	adapter, err := c.adapterFor(in.Type.FType)
	if err != nil {
		item.State = StateFatal
		item.Message = err.Error()
		return item, err
	}
	item.Engine = adapter.Engine()

	item.State = StateConverting
	log.Info().Str("engine", string(item.Engine)).Str("input", item.Input).Str("output", item.Output).Msg("convert: start")
	start := time.Now()
	err = adapter.Convert(ctx, engine.Job{Input: in, Output: out, Log: logArt, Verbosity: c.verbosity})
	item.Duration = time.Since(start)
	metrics.ObserveConversion(string(item.Engine), item.Duration)
	if err != nil {
		item.State = StateFatal
		item.Message = err.Error()
		return item, fmt.Errorf("convert %s with %s: %w", in.Path, item.Engine, err)
	}

	item.State = StateConverted
	item.LogConfirmed = logArt != nil && logArt.Confirmed
	log.Info().Str("output", item.Output).Bool("log_confirmed", item.LogConfirmed).Dur("took", item.Duration).Msg("convert: done")
	return item, nil
}

// adapterFor picks the backend for a storage format. DICOM follows the
// configured engine; NRRD can only be read by plastimatch.
func (c *Controller) adapterFor(ftype instance.FileType) (engine.Adapter, error) {
	var want engine.Engine
	switch ftype {
	case instance.FileDICOM:
		if !c.engine.Valid() {
			return nil, fmt.Errorf("%w %q", engine.ErrUnknownEngine, c.engine)
		}
		want = c.engine
	case instance.FileNRRD:
		want = engine.Plastimatch
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ftype)
	}
	adapter, ok := c.adapters[want]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterUnavailable, want)
	}
	return adapter, nil
}
