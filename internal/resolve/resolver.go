// Package resolve turns an instance id into the aligned input, output and log
// artifacts the converter works on.
//
// Instances live under <data_dir>/instances/<id>/ and are described by a
// manifest.yml listing their data:
//
//	id: patient-1
//	data:
//	  - path: dicom/ct
//	    type: dicom:mod=ct
//	    confirmed: true
//
// Outputs and logs are placed in a bundle directory inside the instance and
// named from templates with a [basename] token.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"niftiwork/internal/convert"
	fileutil "niftiwork/internal/file"
	"niftiwork/internal/instance"
)

const (
	ManifestName       = "manifest.yml"
	BasenameToken      = "[basename]"
	DefaultBundle      = "nifti"
	DefaultFileName    = BasenameToken + ".nii.gz"
	DefaultLogFileName = BasenameToken + ".pmconv.log"
)

var logType = instance.MustParseDataType("log:log-task=conversion")

// Resolver produces the artifacts of one instance and records what a run produced.
type Resolver interface {
	Resolve(ctx context.Context, instanceID string) (*instance.Instance, convert.Batch, error)
	Register(ctx context.Context, inst *instance.Instance, batch convert.Batch) error
}

type Options struct {
	DataDir      string
	Targets      []instance.TargetSelector
	Bundle       string
	FileTemplate string
	LogTemplate  string
}

// ManifestResolver is the file-based Resolver.
type ManifestResolver struct {
	root         string
	targets      []instance.TargetSelector
	bundle       string
	fileTemplate string
	logTemplate  string
}

func NewManifestResolver(opts Options) *ManifestResolver {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Bundle == "" {
		opts.Bundle = DefaultBundle
	}
	if opts.FileTemplate == "" {
		opts.FileTemplate = DefaultFileName
	}
	if opts.LogTemplate == "" {
		opts.LogTemplate = DefaultLogFileName
	}
	return &ManifestResolver{
		root:         filepath.Join(opts.DataDir, "instances"),
		targets:      opts.Targets,
		bundle:       opts.Bundle,
		fileTemplate: opts.FileTemplate,
		logTemplate:  opts.LogTemplate,
	}
}

// InstanceDir returns where the instance with the given id is stored.
func (r *ManifestResolver) InstanceDir(instanceID string) string {
	return filepath.Join(r.root, instanceID)
}

// Load reads the manifest of an instance.
func (r *ManifestResolver) Load(_ context.Context, instanceID string) (*instance.Instance, error) {
	if err := validateID(instanceID); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(r.InstanceDir(instanceID))
	if err != nil {
		return nil, fmt.Errorf("instance dir: %w", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, ManifestName)) //nolint:gosec // path is built from a validated id
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var inst instance.Instance
	if err := yaml.Unmarshal(b, &inst); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBadManifest, instanceID, err)
	}
	if inst.ID == "" {
		inst.ID = instanceID
	}
	for _, a := range inst.Data {
		if err := validateArtifactPath(a.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrBadManifest, instanceID, err)
		}
	}
	inst.Dir = dir
	inst.Attach()
	return &inst, nil
}

// Resolve selects inputs by target precedence and derives an output and a log
// artifact for each of them.
func (r *ManifestResolver) Resolve(ctx context.Context, instanceID string) (*instance.Instance, convert.Batch, error) {
	for _, tmpl := range []string{r.fileTemplate, r.logTemplate} {
		if err := ValidateTemplate(tmpl); err != nil {
			return nil, convert.Batch{}, err
		}
	}
	inst, err := r.Load(ctx, instanceID)
	if err != nil {
		return nil, convert.Batch{}, err
	}

	inputs := r.selectInputs(inst)
	batch := convert.Batch{
		Inputs:  inputs,
		Outputs: make([]*instance.Artifact, 0, len(inputs)),
		Logs:    make([]*instance.Artifact, 0, len(inputs)),
	}
	used := make(map[string]struct{})
	for _, in := range inputs {
		outPath := uniquePath(r.bundlePath(r.fileTemplate, in), used)
		logPath := uniquePath(r.bundlePath(r.logTemplate, in), used)
		batch.Outputs = append(batch.Outputs, inst.NewArtifact(outPath, in.Type.WithFType(instance.FileNIFTI), r.bundle))
		batch.Logs = append(batch.Logs, inst.NewArtifact(logPath, logType, r.bundle))
	}

	log.Debug().Str("instance", inst.ID).Int("inputs", len(inputs)).Msg("resolved conversion targets")
	return inst, batch, nil
}

func (r *ManifestResolver) selectInputs(inst *instance.Instance) []*instance.Artifact {
	picked := make(map[*instance.Artifact]struct{})
	var inputs []*instance.Artifact
	for _, target := range r.targets {
		for _, a := range inst.Data {
			if !a.Confirmed {
				continue
			}
			if _, ok := picked[a]; ok {
				continue
			}
			if target.Matches(a.Type) {
				picked[a] = struct{}{}
				inputs = append(inputs, a)
			}
		}
	}
	return inputs
}

func (r *ManifestResolver) bundlePath(template string, in *instance.Artifact) string {
	name := strings.ReplaceAll(template, BasenameToken, in.Basename())
	return path.Join(r.bundle, name)
}

// Register appends produced outputs and confirmed logs to the manifest.
// Outputs are confirmed by their presence on disk.
func (r *ManifestResolver) Register(_ context.Context, inst *instance.Instance, batch convert.Batch) error {
	known := make(map[string]struct{}, len(inst.Data))
	for _, a := range inst.Data {
		known[a.Path] = struct{}{}
	}
	added := 0
	add := func(a *instance.Artifact) {
		if _, ok := known[a.Path]; ok {
			return
		}
		known[a.Path] = struct{}{}
		inst.Data = append(inst.Data, a)
		added++
	}
	for i := range batch.Outputs {
		if fileutil.IsFile(batch.Outputs[i].AbsPath()) {
			batch.Outputs[i].Confirm()
			add(batch.Outputs[i])
		}
		if i < len(batch.Logs) && batch.Logs[i] != nil && batch.Logs[i].Confirmed {
			add(batch.Logs[i])
		}
	}
	if added == 0 {
		return nil
	}
	if err := fileutil.WriteYAMLAtomic(filepath.Join(inst.Dir, ManifestName), inst); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	log.Info().Str("instance", inst.ID).Int("added", added).Msg("manifest updated")
	return nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidInstanceID, id)
	}
	return nil
}

// ValidateTemplate checks that a file name template names a file directly
// inside the bundle.
func ValidateTemplate(tmpl string) error {
	if !strings.Contains(tmpl, BasenameToken) {
		return fmt.Errorf("%w: %q must contain %s", ErrBadTemplate, tmpl, BasenameToken)
	}
	if strings.ContainsAny(tmpl, `/\`) || strings.Contains(tmpl, "..") {
		return fmt.Errorf("%w: %q must be a plain file name", ErrBadTemplate, tmpl)
	}
	return nil
}

// validateArtifactPath keeps manifest paths inside the instance directory.
func validateArtifactPath(p string) error {
	if p == "" {
		return errors.New("empty artifact path")
	}
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return fmt.Errorf("artifact path %q is absolute", p)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("artifact path %q leaves the instance directory", p)
	}
	return nil
}

// uniquePath returns p, or p with ".N" inserted before its extension when p
// was already handed out in this resolution.
func uniquePath(p string, used map[string]struct{}) string {
	if _, taken := used[p]; !taken {
		used[p] = struct{}{}
		return p
	}
	stem, ext := splitExt(p)
	for n := 1; ; n++ {
		candidate := stem + "." + strconv.Itoa(n) + ext
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
	}
}

func splitExt(p string) (string, string) {
	if strings.HasSuffix(p, ".nii.gz") {
		return strings.TrimSuffix(p, ".nii.gz"), ".nii.gz"
	}
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext), ext
}
