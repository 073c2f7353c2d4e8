package decode

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Orientation(t *testing.T) {
	d := New()

	tests := []struct {
		line        string
		roll, pitch float64
	}{
		{"Roll: 12.50°, Pitch: -3.20°", 12.5, -3.2},
		{"Roll: 12.50, Pitch: -3.20", 12.5, -3.2},
		{"  Roll:0,Pitch:0  ", 0, 0},
		{"Pitch: 4.5°, Roll: -80", -80, 4.5},
		{"roll: 1e1, PITCH: 2", 10, 2},
		{"Roll: 7\xb0, Pitch: 8\xb0", 7, 8},
		{"Roll: 1º, Pitch: 2º", 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			s, err := d.Decode(tt.line)
			require.NoError(t, err)
			assert.Equal(t, Orientation{Roll: tt.roll, Pitch: tt.pitch}, s)
			assert.Equal(t, KindOrientation, s.Kind())
		})
	}
}

func TestDecode_OrientationExact(t *testing.T) {
	d := New()
	for r := -90.0; r <= 90; r += 7.25 {
		for p := -90.0; p <= 90; p += 11.5 {
			for _, glyph := range []string{"", "°"} {
				line := fmt.Sprintf("Roll: %v%s, Pitch: %v%s", r, glyph, p, glyph)
				s, err := d.Decode(line)
				require.NoError(t, err, line)
				require.Equal(t, Orientation{Roll: r, Pitch: p}, s, line)
			}
		}
	}
}

func TestDecode_Plant(t *testing.T) {
	d := New()

	_, err := d.Decode("t[s],u,v")
	require.ErrorIs(t, err, ErrIgnored)
	require.NotErrorIs(t, err, ErrRejected)

	s, err := d.Decode("0.010,1.50,0.00")
	require.NoError(t, err)
	assert.Equal(t, Plant{T: 0.010, U: 1.50, V: 0.00}, s)

	s, err = d.Decode(" 1.5 , -2 , 3e-3 ")
	require.NoError(t, err)
	assert.Equal(t, Plant{T: 1.5, U: -2, V: 0.003}, s)
}

func TestDecode_Distance(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	d := New(WithClock(clock))

	now = now.Add(1500 * time.Millisecond)
	s, err := d.Decode("Dist: 123.4 mm")
	require.NoError(t, err)
	assert.Equal(t, Distance{Distance: 123.4, ObservedAt: 1.5}, s)

	s, err = d.Decode("Dist:98 mm raw=1023")
	require.NoError(t, err)
	assert.Equal(t, 98.0, s.(Distance).Distance)
}

func TestDecode_Rejected(t *testing.T) {
	d := New()

	for _, line := range []string{
		"hello",
		"Roll: abc, Pitch: 1",
		"Roll: 1",
		"Yaw: 1, Pitch: 2",
		"Roll: 1, Roll: 2",
		"1,2",
		"1,2,3,4",
		"1,x,3",
		"1,,3",
		"Dist:",
		"Dist: far mm",
		"Roll: 1, Pitch: 2, Yaw: 3",
		"\x00\x01\x02",
		"Roll: 1°, Pitch: 2°°°, extra",
	} {
		t.Run(line, func(t *testing.T) {
			var s Sample
			var err error
			require.NotPanics(t, func() { s, err = d.Decode(line) })
			require.ErrorIs(t, err, ErrRejected)
			require.Nil(t, s)
		})
	}
}

func TestDecode_BlankIgnored(t *testing.T) {
	d := New()
	for _, line := range []string{"", "   ", "\r", "°"} {
		_, err := d.Decode(line)
		require.ErrorIs(t, err, ErrIgnored)
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "orientation", KindOrientation.String())
	assert.Equal(t, "plant", KindPlant.String())
	assert.Equal(t, "distance", KindDistance.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
