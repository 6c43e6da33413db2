package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dixieflatline76/facecrop/pkg/facecrop"
	"github.com/dixieflatline76/facecrop/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSubmitter simulates the controller.
type MockSubmitter struct {
	mock.Mock
}

func (m *MockSubmitter) Submit(ctx context.Context, data []byte) (facecrop.Result, error) {
	args := m.Called(ctx, data)
	return args.Get(0).(facecrop.Result), args.Error(1)
}

func dataURL(t *testing.T) string {
	t.Helper()
	s := render.NewSurface(4, 4)
	url, err := s.EncodeDataURL(render.FormatPNG, 0)
	require.NoError(t, err)
	return url
}

func writeInputs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestOutputPath(t *testing.T) {
	tests := []struct {
		input, outDir, suffix string
		format                render.Format
		want                  string
	}{
		{"/photos/me.jpeg", "/out", "_face", render.FormatPNG, "/out/me_face.png"},
		{"/photos/me.jpeg", "", "_face", render.FormatJPEG, "/photos/me_face.jpg"},
		{"group.shot.png", "out", "_face_debug", render.FormatPNG, "out/group.shot_face_debug.png"},
		{"noext", "", "_face", render.FormatPNG, "noext_face.png"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), outputPath(filepath.FromSlash(tt.input), filepath.FromSlash(tt.outDir), tt.suffix, tt.format))
		})
	}
}

func TestCropFiles(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "crops")
	files := writeInputs(t, in, "face.png", "empty.png", "broken.png")
	img := dataURL(t)

	p := new(MockSubmitter)
	p.On("Submit", mock.Anything, []byte("face.png")).Return(facecrop.Result{Status: facecrop.StatusSuccess, Image: img, Preview: img}, nil)
	p.On("Submit", mock.Anything, []byte("empty.png")).Return(facecrop.Result{Status: facecrop.StatusNoFaceFound}, nil)
	p.On("Submit", mock.Anything, []byte("broken.png")).Return(facecrop.Result{Status: facecrop.StatusError}, facecrop.ErrDecode)

	sum, err := cropFiles(context.Background(), p, append(files, filepath.Join(in, "missing.png")), out, render.FormatPNG, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cropped)
	assert.Equal(t, 1, sum.NoFace)
	assert.Equal(t, 2, sum.Failed)
	assert.Len(t, sum.Failures, 3)

	assert.FileExists(t, filepath.Join(out, "face_face.png"))
	assert.FileExists(t, filepath.Join(out, "face_face_debug.png"))
	assert.NoFileExists(t, filepath.Join(out, "empty_face.png"))
	p.AssertExpectations(t)
}

func TestCropFiles_AllFailed(t *testing.T) {
	files := writeInputs(t, t.TempDir(), "a.png", "b.png")
	p := new(MockSubmitter)
	p.On("Submit", mock.Anything, mock.Anything).Return(facecrop.Result{}, errors.New("boom"))

	sum, err := cropFiles(context.Background(), p, files, t.TempDir(), render.FormatPNG, nil)
	assert.Error(t, err)
	assert.Equal(t, 2, sum.Failed)
}

func TestCropFiles_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cropFiles(ctx, new(MockSubmitter), []string{"a.png"}, "", render.FormatPNG, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
