package cargo

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/internal/model"
)

func placement(x, y, w, h int, rotated bool) model.CargoPlacement {
	return model.CargoPlacement{
		ID: uuid.New(), LoadID: uuid.New(),
		XCm: x, YCm: y, WidthCm: w, HeightCm: h, Rotated: rotated,
	}
}

func squareVan(side int) *model.Van {
	return &model.Van{ID: uuid.New(), CargoWidthCm: side, CargoLengthCm: side}
}

func TestRevalidate_OverflowIgnoresRotationForSquares(t *testing.T) {
	van := squareVan(220)
	for _, rotated := range []bool{false, true} {
		out := Revalidate([]model.CargoPlacement{placement(0, 0, 250, 250, rotated)}, van)
		require.Len(t, out, 1)
		assert.True(t, out[0].IsOverflow, "rotated=%v", rotated)
	}
}

func TestRevalidate_RotationChangesFit(t *testing.T) {
	van := &model.Van{CargoWidthCm: 120, CargoLengthCm: 400}

	upright := Revalidate([]model.CargoPlacement{placement(0, 0, 200, 80, false)}, van)
	turned := Revalidate([]model.CargoPlacement{placement(0, 0, 200, 80, true)}, van)

	assert.True(t, upright[0].IsOverflow)
	assert.False(t, turned[0].IsOverflow)
}

func TestRevalidate_NegativeOffsetOverflows(t *testing.T) {
	out := Revalidate([]model.CargoPlacement{placement(-1, 0, 10, 10, false)}, squareVan(220))
	assert.True(t, out[0].IsOverflow)
}

func TestRevalidate_NoVanNeverOverflows(t *testing.T) {
	out := Revalidate([]model.CargoPlacement{placement(0, 0, 5000, 5000, false)}, nil)
	assert.False(t, out[0].IsOverflow)
}

func TestRevalidate_ConflictIsSymmetric(t *testing.T) {
	in := []model.CargoPlacement{
		placement(0, 0, 120, 80, false),
		placement(100, 40, 120, 80, false),
		placement(0, 200, 120, 80, false),
	}
	out := Revalidate(in, squareVan(400))

	assert.True(t, out[0].HasConflict)
	assert.True(t, out[1].HasConflict)
	assert.False(t, out[2].HasConflict)
}

func TestRevalidate_TouchingEdgesDoNotConflict(t *testing.T) {
	in := []model.CargoPlacement{
		placement(0, 0, 120, 80, false),
		placement(120, 0, 120, 80, false),
		placement(0, 80, 120, 80, false),
	}
	for _, p := range Revalidate(in, squareVan(400)) {
		assert.False(t, p.HasConflict)
	}
}

func TestRevalidate_ResolvesStaleFlags(t *testing.T) {
	a := placement(0, 0, 120, 80, false)
	b := placement(300, 300, 50, 50, false)
	a.HasConflict, b.HasConflict = true, true
	a.IsOverflow = true

	out := Revalidate([]model.CargoPlacement{a, b}, squareVan(400))
	assert.False(t, out[0].HasConflict)
	assert.False(t, out[0].IsOverflow)
	assert.False(t, out[1].HasConflict)

	// The input slice is left alone.
	assert.True(t, a.HasConflict)
}

func TestChanged(t *testing.T) {
	before := []model.CargoPlacement{placement(0, 0, 10, 10, false), placement(5, 5, 10, 10, false)}
	after := Revalidate(before, squareVan(400))

	diff := Changed(before, after)
	require.Len(t, diff, 2)
	assert.Empty(t, Changed(after, Revalidate(after, squareVan(400))))
}

func TestOnBoardPlacements(t *testing.T) {
	a := placement(0, 0, 10, 10, false)
	b := placement(20, 0, 10, 10, false)

	out := OnBoardPlacements([]model.CargoPlacement{a, b}, []uuid.UUID{b.LoadID})
	require.Len(t, out, 1)
	assert.Equal(t, b.ID, out[0].ID)
}
