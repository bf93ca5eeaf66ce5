package engine

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"

	fileutil "niftiwork/internal/file"
)

const defaultPlastimatchBin = "plastimatch"

// PlastimatchAdapter converts DICOM series and NRRD volumes. The converter's
// console output is written to the log artifact.
type PlastimatchAdapter struct {
	bin    string
	runner CommandRunner
}

func NewPlastimatch(bin string, runner CommandRunner) *PlastimatchAdapter {
	if bin == "" {
		bin = defaultPlastimatchBin
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PlastimatchAdapter{bin: bin, runner: runner}
}

func (p *PlastimatchAdapter) Engine() Engine { return Plastimatch }

// Convert removes a stale log, runs the conversion and confirms the log only
// when the run left one behind. A missing log is not an error.
func (p *PlastimatchAdapter) Convert(ctx context.Context, job Job) error {
	if job.Input == nil || job.Output == nil {
		return ErrNoInput
	}
	if err := fileutil.EnsureDir(filepath.Dir(job.Output.AbsPath())); err != nil {
		return err //nolint:wrapcheck
	}

	cmd := Command{
		Name: p.bin,
		Args: []string{"convert", "--input", job.Input.AbsPath(), "--output-img", job.Output.AbsPath()},
	}

	var sinks []io.Writer
	var logFile *fileutil.LazyFile
	if job.Log != nil {
		if err := fileutil.RemoveIfExists(job.Log.AbsPath()); err != nil {
			return err //nolint:wrapcheck
		}
		logFile = &fileutil.LazyFile{Path: job.Log.AbsPath()}
		sinks = append(sinks, logFile)
	}
	if job.Verbosity >= Verbose {
		engineLog := log.With().Str("engine", string(Plastimatch)).Logger()
		sinks = append(sinks, engineLog)
		engineLog.Info().Str("cmd", cmd.String()).Msg(">> run")
	}
	switch len(sinks) {
	case 0:
		cmd.Stdout, cmd.Stderr = io.Discard, io.Discard
	case 1:
		cmd.Stdout, cmd.Stderr = sinks[0], sinks[0]
	default:
		w := io.MultiWriter(sinks...)
		cmd.Stdout, cmd.Stderr = w, w
	}

	runErr := p.runner.Run(ctx, cmd)
	if logFile != nil {
		if err := logFile.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return runErr //nolint:wrapcheck
	}

	if job.Log != nil && fileutil.IsFile(job.Log.AbsPath()) {
		job.Log.Confirm()
	}
	return nil
}
