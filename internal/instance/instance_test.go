package instance

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("DICOM:mod=ct:part=head")
	require.NoError(t, err)
	assert.Equal(t, FileDICOM, dt.FType)
	assert.Equal(t, "dicom:mod=ct:part=head", dt.String())

	v, ok := dt.Meta.Get("part")
	assert.True(t, ok)
	assert.Equal(t, "head", v)

	for _, bad := range []string{"", "jpeg:mod=ct", "dicom:mod", "nrrd:=ct"} {
		_, err := ParseDataType(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidDataType), "expected ErrInvalidDataType for %q, got %v", bad, err)
	}
}

func TestSelectorMatches(t *testing.T) {
	selector := MustParseDataType("dicom:mod=ct")

	assert.True(t, selector.Matches(MustParseDataType("dicom:mod=CT:part=head")))
	assert.False(t, selector.Matches(MustParseDataType("dicom:mod=mr")))
	assert.False(t, selector.Matches(MustParseDataType("dicom")))
	assert.False(t, selector.Matches(MustParseDataType("nrrd:mod=ct")))
	assert.True(t, MustParseDataType("nrrd").Matches(MustParseDataType("nrrd:mod=ct")))
}

func TestArtifactBasenameAndAbsPath(t *testing.T) {
	inst := &Instance{ID: "p1", Dir: "/data/instances/p1"}
	cases := map[string]string{
		"dicom/ct_series/": "ct_series",
		"volumes/ct.nrrd":  "ct",
		"nifti/ct.nii.gz":  "ct",
		"raw/notes":        "notes",
		".nii.gz":          ".nii.gz",
	}
	for path, want := range cases {
		a := inst.NewArtifact(path, MustParseDataType("dicom"), "")
		assert.Equalf(t, want, a.Basename(), "basename of %q", path)
	}

	a := inst.NewArtifact("volumes/ct.nrrd", MustParseDataType("nrrd"), "")
	assert.Equal(t, filepath.Join("/data/instances/p1", "volumes/ct.nrrd"), a.AbsPath())
	assert.False(t, a.Confirmed)
	a.Confirm()
	assert.True(t, a.Confirmed)
}

func TestDataTypeYAMLRoundTrip(t *testing.T) {
	src := []byte("id: p1\ndata:\n  - path: dicom\n    type: dicom:mod=ct\n    confirmed: true\n")
	var inst Instance
	require.NoError(t, yaml.Unmarshal(src, &inst))
	require.Len(t, inst.Data, 1)
	assert.Equal(t, FileDICOM, inst.Data[0].Type.FType)

	out, err := yaml.Marshal(&inst)
	require.NoError(t, err)
	assert.Contains(t, string(out), "dicom:mod=ct")
}
