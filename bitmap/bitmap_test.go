package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/telescan/telescan/bitmap"
)

func TestAppendSkipRank(t *testing.T) {
	b := bitmap.New()
	b.Append(true, 3)
	b.Skip(2)
	b.Append(true, 1)
	require.EqualValues(t, 6, b.Size())
	require.EqualValues(t, 4, b.Rank())
	require.True(t, b.At(0))
	require.True(t, b.At(2))
	require.False(t, b.At(3))
	require.False(t, b.At(4))
	require.True(t, b.At(5))
}

func TestAllZero(t *testing.T) {
	b := bitmap.New()
	require.True(t, b.AllZero())
	b.Skip(10)
	require.True(t, b.AllZero())
	b.Append(true, 1)
	require.False(t, b.AllZero())
}

// De Morgan's law: A & B == ~(~A | ~B). Invariant 4 from spec.md §8.
func TestDeMorgan(t *testing.T) {
	a := bitmap.New()
	a.Append(true, 1)
	a.Append(false, 1)
	a.Append(true, 1)
	a.Append(false, 1)

	b := bitmap.New()
	b.Append(true, 1)
	b.Append(true, 1)
	b.Append(false, 1)
	b.Append(false, 1)

	and := bitmap.And(a, b)

	notA := bitmap.Not(a, a.Size())
	notB := bitmap.Not(b, b.Size())
	orNot := bitmap.Or(notA, notB)
	rhs := bitmap.Not(orNot, orNot.Size())

	require.True(t, bitmap.Equal(and, rhs))
}

func TestFlip(t *testing.T) {
	b := bitmap.New()
	b.Append(true, 2)
	b.Append(false, 2)
	b.Flip(4)
	require.False(t, b.At(0))
	require.False(t, b.At(1))
	require.True(t, b.At(2))
	require.True(t, b.At(3))
}

func TestMarshalRoundTrip(t *testing.T) {
	b := bitmap.New()
	b.Append(true, 1)
	b.Skip(5)
	b.Append(true, 2)

	data, err := b.MarshalBinary()
	require.NoError(t, err)

	var b2 bitmap.Bitmap
	require.NoError(t, b2.UnmarshalBinary(data))
	require.True(t, bitmap.Equal(b, &b2))
}
