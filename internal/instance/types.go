package instance

import (
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileDICOM FileType = "dicom"
	FileNRRD  FileType = "nrrd"
	FileNIFTI FileType = "nifti"
	FileLog   FileType = "log"
)

// knownSuffixes are stripped from file names when deriving a basename.
// Longer suffixes first so ".nii.gz" wins over ".gz".
var knownSuffixes = []string{".nii.gz", ".nii", ".nrrd", ".nhdr", ".dcm", ".log"}

// Artifact is one file (or DICOM series directory) tracked for an instance.
// Path is relative to the instance directory.
type Artifact struct {
	Path      string   `yaml:"path" json:"path"`
	Type      DataType `yaml:"type" json:"type"`
	Bundle    string   `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	Confirmed bool     `yaml:"confirmed" json:"confirmed"`

	dir string
}

// Instance is one unit of imaging data, e.g. one patient study.
type Instance struct {
	ID   string      `yaml:"id" json:"id"`
	Dir  string      `yaml:"-" json:"dir"`
	Data []*Artifact `yaml:"data" json:"data"`
}

// Attach binds every artifact to the instance directory so AbsPath resolves.
func (i *Instance) Attach() {
	for _, a := range i.Data {
		a.dir = i.Dir
	}
}

// NewArtifact creates an unconfirmed artifact rooted at the instance directory.
func (i *Instance) NewArtifact(path string, dtype DataType, bundle string) *Artifact {
	return &Artifact{Path: path, Type: dtype, Bundle: bundle, dir: i.Dir}
}

func (i *Instance) String() string { return i.ID }

// AbsPath returns the absolute location of the artifact on disk.
func (a *Artifact) AbsPath() string {
	if filepath.IsAbs(a.Path) || a.dir == "" {
		return a.Path
	}
	return filepath.Join(a.dir, a.Path)
}

// Basename is the final path element without a known image or log suffix.
func (a *Artifact) Basename() string {
	base := filepath.Base(strings.TrimRight(a.Path, `/\`))
	lower := strings.ToLower(base)
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(lower, suffix) && len(base) > len(suffix) {
			return base[:len(base)-len(suffix)]
		}
	}
	return base
}

// Confirm marks the artifact as present so downstream consumers may rely on it.
func (a *Artifact) Confirm() { a.Confirmed = true }
