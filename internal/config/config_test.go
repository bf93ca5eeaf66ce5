package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"niftiwork/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultAndNormalize(t *testing.T) {
	cfg := Default()
	if cfg.Port == 0 || cfg.DataDir == "" || cfg.MaxConcurrentRuns < 1 {
		t.Fatalf("default config invalid: %+v", cfg)
	}
	if cfg.Engine != engine.Plastimatch || cfg.AllowMultiInput || cfg.OverwriteExistingFile {
		t.Fatalf("unexpected module defaults: %+v", cfg)
	}
	if cfg.BundleName != "nifti" || cfg.ConvertedFileName != "[basename].nii.gz" {
		t.Fatalf("unexpected naming defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	got := normalizeTargets([]string{" dicom:mod=ct", "dicom:mod=ct", "", "nrrd"})
	if len(got) != 2 || got[0] != "dicom:mod=ct" || got[1] != "nrrd" {
		t.Fatalf("expected deduplicated targets, got %v", got)
	}
	if got := normalizeTargets(nil); len(got) != 2 {
		t.Fatalf("expected default targets, got %v", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Engine != engine.Plastimatch {
		t.Fatalf("expected default engine, got %q", cfg.Engine)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		"port: 9090",
		"data_dir: testdata",
		"max_concurrent_runs: 4",
		"engine: DCM2NIIX",
		"allow_multi_input: true",
		"targets: ['dicom:mod=ct', 'dicom:mod=pt']",
		"bundle_name: converted",
		"converted_file_name: ct_[basename].nii.gz",
		"overwrite_existing_file: true",
		"debug: true",
	}, "\n"))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" || cfg.MaxConcurrentRuns != 4 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Engine != engine.Dcm2niix || !cfg.AllowMultiInput || !cfg.OverwriteExistingFile {
		t.Fatalf("unexpected module settings: %+v", cfg)
	}
	selectors, err := cfg.Selectors()
	if err != nil || len(selectors) != 2 || selectors[1].String() != "dicom:mod=pt" {
		t.Fatalf("unexpected selectors %v err=%v", selectors, err)
	}
	if cfg.Verbosity() != engine.Debug {
		t.Fatalf("expected debug verbosity, got %d", cfg.Verbosity())
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string]string{
		"concurrency": "max_concurrent_runs: 0\n",
		"engine":      "engine: itk\n",
		"targets":     "targets: ['png:mod=ct']\n",
		"bundle":      "bundle_name: ../out\n",
		"template":    "converted_file_name: out.nii.gz\n",
		"traversal":   "converted_file_name: ../[basename].nii.gz\n",
		"subdir":      "converted_file_name: sub/[basename].nii.gz\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatalf("expected error for %s", content)
			}
		})
	}
}
