package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftiwork/internal/instance"
)

type recordingRunner struct {
	calls  []Command
	output string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, cmd Command) error {
	r.calls = append(r.calls, cmd)
	if r.output != "" && cmd.Stdout != nil {
		if _, err := io.WriteString(cmd.Stdout, r.output); err != nil {
			return err
		}
	}
	return r.err
}

func newJob(t *testing.T, input string, ftype string) (Job, *instance.Instance) {
	t.Helper()
	inst := &instance.Instance{ID: "p1", Dir: t.TempDir()}
	return Job{
		Input:  inst.NewArtifact(input, instance.MustParseDataType(ftype), ""),
		Output: inst.NewArtifact("nifti/ct.nii.gz", instance.MustParseDataType("nifti:mod=ct"), "nifti"),
		Log:    inst.NewArtifact("nifti/ct.pmconv.log", instance.MustParseDataType("log:log-task=conversion"), "nifti"),
	}, inst
}

func TestParseEngine(t *testing.T) {
	e, err := ParseEngine(" DCM2NIIX ")
	require.NoError(t, err)
	assert.Equal(t, Dcm2niix, e)

	_, err = ParseEngine("itk")
	assert.True(t, errors.Is(err, ErrUnknownEngine))
}

func TestVerbosityFrom(t *testing.T) {
	assert.Equal(t, Quiet, VerbosityFrom(false, false))
	assert.Equal(t, Verbose, VerbosityFrom(true, false))
	assert.Equal(t, Debug, VerbosityFrom(true, true))
	assert.Equal(t, Debug, VerbosityFrom(false, true))
}

func TestPlastimatchWritesAndConfirmsLog(t *testing.T) {
	job, inst := newJob(t, "dicom", "dicom:mod=ct")
	runner := &recordingRunner{output: "converted 120 slices\n"}

	require.NoError(t, os.MkdirAll(filepath.Join(inst.Dir, "nifti"), 0o750))
	require.NoError(t, os.WriteFile(job.Log.AbsPath(), []byte("stale run\n"), 0o600))

	adapter := NewPlastimatch("", runner)
	require.NoError(t, adapter.Convert(context.Background(), job))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "plastimatch", runner.calls[0].Name)
	assert.Equal(t, []string{"convert", "--input", job.Input.AbsPath(), "--output-img", job.Output.AbsPath()}, runner.calls[0].Args)

	b, err := os.ReadFile(job.Log.AbsPath())
	require.NoError(t, err)
	assert.Equal(t, "converted 120 slices\n", string(b), "stale log content must be gone")
	assert.True(t, job.Log.Confirmed)
}

func TestPlastimatchMissingLogStaysUnconfirmed(t *testing.T) {
	job, inst := newJob(t, "ct.nrrd", "nrrd:mod=ct")
	require.NoError(t, os.MkdirAll(filepath.Join(inst.Dir, "nifti"), 0o750))
	require.NoError(t, os.WriteFile(job.Log.AbsPath(), []byte("stale"), 0o600))

	adapter := NewPlastimatch("/opt/plastimatch", &recordingRunner{})
	require.NoError(t, adapter.Convert(context.Background(), job))

	assert.NoFileExists(t, job.Log.AbsPath())
	assert.False(t, job.Log.Confirmed)
}

func TestPlastimatchWithoutLogDiscardsOutput(t *testing.T) {
	job, inst := newJob(t, "ct.nrrd", "nrrd:mod=ct")
	job.Log = nil
	runner := &recordingRunner{output: "converted 1 volume\n"}

	require.NoError(t, NewPlastimatch("", runner).Convert(context.Background(), job))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, io.Discard, runner.calls[0].Stdout)
	assert.Equal(t, io.Discard, runner.calls[0].Stderr)
	assert.NoFileExists(t, filepath.Join(inst.Dir, "nifti", "ct.pmconv.log"))
}

func TestPlastimatchVerboseTeesToLogger(t *testing.T) {
	var captured bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&captured)
	t.Cleanup(func() { log.Logger = prev })

	job, _ := newJob(t, "dicom", "dicom:mod=ct")
	job.Verbosity = Verbose
	runner := &recordingRunner{output: "converted 120 slices\n"}

	require.NoError(t, NewPlastimatch("", runner).Convert(context.Background(), job))

	b, err := os.ReadFile(job.Log.AbsPath())
	require.NoError(t, err)
	assert.Equal(t, "converted 120 slices\n", string(b))
	assert.True(t, job.Log.Confirmed)

	out := captured.String()
	assert.Contains(t, out, ">> run")
	assert.Contains(t, out, "--output-img")
	assert.Contains(t, out, "converted 120 slices")
	assert.Contains(t, out, `"engine":"plastimatch"`)
}

func TestPlastimatchPropagatesFailure(t *testing.T) {
	job, _ := newJob(t, "dicom", "dicom:mod=ct")
	boom := errors.New("exit status 1")
	adapter := NewPlastimatch("", &recordingRunner{output: "error reading series\n", err: boom})

	err := adapter.Convert(context.Background(), job)
	assert.ErrorIs(t, err, boom)
	assert.False(t, job.Log.Confirmed)
}

func TestDcm2niixArgs(t *testing.T) {
	job, inst := newJob(t, "dicom/series1", "dicom:mod=ct")
	job.Verbosity = Debug
	runner := &recordingRunner{}

	adapter := NewDcm2niix("", runner)
	require.NoError(t, adapter.Convert(context.Background(), job))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "dcm2niix", runner.calls[0].Name)
	assert.Equal(t, []string{
		"-o", filepath.Join(inst.Dir, "nifti"),
		"-f", "ct",
		"-v", "2",
		"-z", "y",
		"-b", "n",
		filepath.Join(inst.Dir, "dicom/series1"),
	}, runner.calls[0].Args)

	assert.False(t, job.Log.Confirmed)
	assert.NoFileExists(t, job.Log.AbsPath())
}

func TestDcm2niixVerbosityCodes(t *testing.T) {
	adapter := NewDcm2niix("", &recordingRunner{})
	for v, want := range map[Verbosity]string{Quiet: "0", Verbose: "1", Debug: "2"} {
		job, _ := newJob(t, "dicom", "dicom")
		job.Verbosity = v
		args, err := adapter.Args(job)
		require.NoError(t, err)
		assert.Equal(t, want, args[5])
	}
}

func TestDcm2niixRejectsUncompressedOutput(t *testing.T) {
	job, inst := newJob(t, "dicom", "dicom:mod=ct")
	job.Output = inst.NewArtifact("nifti/ct.nii", instance.MustParseDataType("nifti"), "nifti")
	runner := &recordingRunner{}

	err := NewDcm2niix("", runner).Convert(context.Background(), job)
	assert.ErrorIs(t, err, ErrOutputSuffix)
	assert.Empty(t, runner.calls)
}

func TestDcm2niixPropagatesFailure(t *testing.T) {
	job, _ := newJob(t, "dicom", "dicom:mod=ct")
	boom := errors.New("exit status 2")
	err := NewDcm2niix("", &recordingRunner{err: boom}).Convert(context.Background(), job)
	assert.ErrorIs(t, err, boom)
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	err := ExecRunner{}.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "exit 3"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")

	require.NoError(t, ExecRunner{}.Run(context.Background(), Command{Name: "/bin/sh", Args: []string{"-c", "true"}}))
}
