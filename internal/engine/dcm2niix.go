package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	fileutil "niftiwork/internal/file"
)

const (
	defaultDcm2niixBin = "dcm2niix"
	niftiGzSuffix      = ".nii.gz"
)

// Dcm2niixAdapter converts a DICOM series directory. It writes no log.
type Dcm2niixAdapter struct {
	bin    string
	runner CommandRunner
}

func NewDcm2niix(bin string, runner CommandRunner) *Dcm2niixAdapter {
	if bin == "" {
		bin = defaultDcm2niixBin
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Dcm2niixAdapter{bin: bin, runner: runner}
}

func (d *Dcm2niixAdapter) Engine() Engine { return Dcm2niix }

// Args builds the dcm2niix argument vector: one file per call, gzip output,
// no BIDS sidecar.
func (d *Dcm2niixAdapter) Args(job Job) ([]string, error) {
	if job.Input == nil || job.Output == nil {
		return nil, ErrNoInput
	}
	outPath := job.Output.AbsPath()
	if !strings.HasSuffix(outPath, niftiGzSuffix) {
		return nil, fmt.Errorf("%w: %s", ErrOutputSuffix, outPath)
	}
	outDir := filepath.Dir(outPath)
	outName := strings.TrimSuffix(filepath.Base(outPath), niftiGzSuffix)

	return []string{
		"-o", outDir,
		"-f", outName,
		"-v", strconv.Itoa(int(job.Verbosity)),
		"-z", "y",
		"-b", "n",
		job.Input.AbsPath(),
	}, nil
}

func (d *Dcm2niixAdapter) Convert(ctx context.Context, job Job) error {
	args, err := d.Args(job)
	if err != nil {
		return err
	}
	if err := fileutil.EnsureDir(filepath.Dir(job.Output.AbsPath())); err != nil {
		return err //nolint:wrapcheck
	}

	cmd := Command{Name: d.bin, Args: args, Stdout: os.Stdout, Stderr: os.Stderr}
	if job.Verbosity >= Verbose {
		log.Info().Str("engine", string(Dcm2niix)).Str("cmd", cmd.String()).Msg(">> run")
	}
	return d.runner.Run(ctx, cmd) //nolint:wrapcheck
}
