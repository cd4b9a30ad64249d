package viewport

import (
	"math"
	"testing"

	"github.com/andresmejia3/reframe/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampUHDToHD(t *testing.T) {
	source := Size{W: 3840, H: 2160}
	target := Size{W: 1920, H: 1080}

	tests := []struct {
		name string
		p    types.FacePoint
		want Window
	}{
		{"Top left corner", types.FacePoint{X: 0, Y: 0}, Window{X: 0, Y: 0, Width: 1920, Height: 1080}},
		{"Bottom right corner", types.FacePoint{X: 3840, Y: 2160}, Window{X: 1920, Y: 1080, Width: 1920, Height: 1080}},
		{"Exact center", types.FacePoint{X: 1920, Y: 1080}, Window{X: 960, Y: 540, Width: 1920, Height: 1080}},
		{"Far outside", types.FacePoint{X: -5000, Y: 99999}, Window{X: 0, Y: 1080, Width: 1920, Height: 1080}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clamp(tt.p, source, target, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampVertical(t *testing.T) {
	// 16:9 landscape cropped to a 9:16 column of full height.
	source := Size{W: 1920, H: 1080}
	target := Size{W: 606, H: 1080}

	w, err := Clamp(types.FacePoint{X: 1500, Y: 300}, source, target, 1)
	require.NoError(t, err)
	assert.Equal(t, 1197, w.X)
	assert.Equal(t, 0, w.Y)
}

func TestClampScaled(t *testing.T) {
	// Source 1920x1080 scaled to 3413x1920 before a 1080x1920 crop.
	source := Size{W: 1920, H: 1080}
	target := Size{W: 1080, H: 1920}
	scale := ScaleToFit(source, target)
	assert.InDelta(t, 1920.0/1080.0, scale, 1e-12)

	w, err := Clamp(types.FacePoint{X: 960, Y: 540}, source, target, scale)
	require.NoError(t, err)
	assert.Equal(t, 0, w.Y)
	assert.Equal(t, int(math.Round(960*scale-540)), w.X)

	w, err = Clamp(types.FacePoint{X: 1919, Y: 540}, source, target, scale)
	require.NoError(t, err)
	assert.Equal(t, int(math.Round(1920*scale))-1080, w.X)
}

func TestClampRejectsOversizedTarget(t *testing.T) {
	_, err := Clamp(types.FacePoint{}, Size{W: 1920, H: 1080}, Size{W: 1080, H: 1920}, 1)
	assert.ErrorIs(t, err, ErrTargetTooLarge)

	_, err = Clamp(types.FacePoint{}, Size{W: 100, H: 100}, Size{W: 0, H: 10}, 1)
	assert.Error(t, err)
}

func TestClampNonFinite(t *testing.T) {
	w, err := Clamp(types.FacePoint{X: math.NaN(), Y: math.Inf(1)}, Size{W: 1200, H: 800}, Size{W: 400, H: 400}, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, w.X)
	assert.Equal(t, 400, w.Y)
}

func TestClampKeepsWindowInsideSweep(t *testing.T) {
	source := Size{W: 1200, H: 700}
	target := Size{W: 400, H: 700}
	for x := -500.0; x <= 1700; x += 13.7 {
		w, err := Clamp(types.FacePoint{X: x, Y: x / 2}, source, target, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, w.X, 0)
		assert.LessOrEqual(t, w.X, 800)
		assert.Equal(t, 0, w.Y)
	}
}

func TestFrameIndex(t *testing.T) {
	tests := []struct {
		t    float64
		fps  float64
		n    int
		want int
	}{
		{0, 30, 150, 0},
		{0.999, 30, 150, 29},
		{1.0, 30, 150, 30},
		{4.99, 30, 150, 149},
		{10, 30, 150, 149},
		{-1, 30, 150, 0},
		{1, 30, 0, -1},
		{0.5, 12, 1, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrameIndex(tt.t, tt.fps, tt.n), "t=%v fps=%v n=%d", tt.t, tt.fps, tt.n)
	}
}

func TestAspectTarget(t *testing.T) {
	got, err := AspectTarget(Size{W: 1920, H: 1080}, 9, 16)
	require.NoError(t, err)
	assert.Equal(t, Size{W: 606, H: 1080}, got)

	got, err = AspectTarget(Size{W: 1080, H: 1920}, 16, 9)
	require.NoError(t, err)
	assert.Equal(t, Size{W: 1080, H: 606}, got)

	got, err = AspectTarget(Size{W: 3840, H: 2160}, 16, 9)
	require.NoError(t, err)
	assert.Equal(t, Size{W: 3840, H: 2160}, got)

	_, err = AspectTarget(Size{W: 100, H: 100}, 0, 1)
	assert.Error(t, err)
}

func TestSchedule(t *testing.T) {
	track := make(types.Track, 90)
	for i := range track {
		track[i] = types.FacePoint{Frame: i, X: float64(i) * 10, Y: 350}
	}
	s := Schedule{Track: track, FPS: 30, Source: Size{W: 1200, H: 700}, Target: Size{W: 400, H: 700}, Scale: 1}

	w, err := s.At(1.5)
	require.NoError(t, err)
	assert.Equal(t, 250, w.X) // frame 45 -> x=450

	w, err = s.At(100)
	require.NoError(t, err)
	assert.Equal(t, 690, w.X) // frame 89 -> x=890

	keys, err := s.Sample(3, 0.5)
	require.NoError(t, err)
	require.Len(t, keys, 6)
	assert.Equal(t, 15, keys[1].Frame)
	assert.Equal(t, 0, keys[0].X)

	_, err = Schedule{}.At(0)
	assert.Error(t, err)
	_, err = s.Sample(1, 0)
	assert.Error(t, err)
}
