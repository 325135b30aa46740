package space

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		dims    []Dimension
		wantErr bool
	}{
		{
			name: "valid mixed space",
			dims: []Dimension{
				NewInteger("fast", 5, 50),
				NewReal("stoploss", -0.35, -0.02),
				NewCategorical("trigger", "bb_lower", "macd_cross", "sar_reversal"),
			},
		},
		{
			name:    "empty space",
			dims:    nil,
			wantErr: true,
		},
		{
			name: "duplicate names",
			dims: []Dimension{
				NewInteger("fast", 5, 50),
				NewInteger("fast", 1, 10),
			},
			wantErr: true,
		},
		{
			name: "inverted bounds",
			dims: []Dimension{
				NewInteger("fast", 50, 5),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.dims...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.dims), s.Len())
		})
	}
}

func TestClipAndParams(t *testing.T) {
	s, err := New(
		NewInteger("fast", 5, 50),
		NewReal("stoploss", -0.35, -0.02),
		NewCategorical("trigger", "bb_lower", "macd_cross"),
	)
	require.NoError(t, err)

	p := s.Clip(Point{3.4, -0.5, 7})
	assert.Equal(t, Point{5, -0.35, 1}, p)

	params := s.Params(p)
	assert.Equal(t, 5, params["fast"])
	assert.Equal(t, -0.35, params["stoploss"])
	assert.Equal(t, "macd_cross", params["trigger"])
}

func TestSizeEstimate(t *testing.T) {
	small, err := New(NewInteger("x", 0, 10), NewInteger("y", 0, 5))
	require.NoError(t, err)
	// 15 discrete values over 2 dimensions: C(15, 2) = 105.
	assert.Equal(t, float64(105), small.Size())

	var dims []Dimension
	for i := 0; i < 24; i++ {
		dims = append(dims, NewInteger(string(rune('a'+i)), 0, 1000))
	}
	huge, err := New(dims...)
	require.NoError(t, err)
	assert.Equal(t, Unbounded, huge.Size())
}

func TestAssembleOrderIsAdditive(t *testing.T) {
	contrib := Contributions{
		Buy:      []Dimension{NewInteger("fast", 5, 50), NewInteger("slow", 20, 200)},
		Sell:     []Dimension{NewInteger("sell-fast", 5, 50)},
		Stoploss: []Dimension{NewReal("stoploss", -0.35, -0.02)},
		Trailing: []Dimension{NewReal("trailing", 0.01, 0.1)},
	}

	base, err := Assemble(contrib, []Group{GroupBuy, GroupSell})
	require.NoError(t, err)
	withMore, err := Assemble(contrib, []Group{GroupBuy, GroupSell, GroupStoploss, GroupTrailing})
	require.NoError(t, err)

	// Enabling later groups must not shift earlier dimension positions.
	for i, name := range base.Names() {
		assert.Equal(t, name, withMore.Names()[i])
	}
	assert.Equal(t, []string{"fast", "slow", "sell-fast", "stoploss", "trailing"}, withMore.Names())
}

func TestSignatureDetectsReconfiguration(t *testing.T) {
	a, err := New(NewInteger("fast", 5, 50), NewReal("stoploss", -0.35, -0.02))
	require.NoError(t, err)
	same, err := New(NewInteger("fast", 5, 50), NewReal("stoploss", -0.35, -0.02))
	require.NoError(t, err)
	reordered, err := New(NewReal("stoploss", -0.35, -0.02), NewInteger("fast", 5, 50))
	require.NoError(t, err)
	rebounded, err := New(NewInteger("fast", 5, 60), NewReal("stoploss", -0.35, -0.02))
	require.NoError(t, err)

	assert.Equal(t, a.Signature(), same.Signature())
	assert.NotEqual(t, a.Signature(), reordered.Signature())
	assert.NotEqual(t, a.Signature(), rebounded.Signature())
}

func TestPointKey(t *testing.T) {
	p := Point{1, 2.5, 0}
	q := Point{1, 2.5, 0}
	r := Point{1, 2.5, 1}

	assert.Equal(t, p.Key(), q.Key())
	assert.NotEqual(t, p.Key(), r.Key())
	assert.True(t, p.Equal(q))
	assert.False(t, p.Equal(r))

	c := p.Copy()
	c[0] = 9
	assert.Equal(t, float64(1), p[0])
}

func TestParseGroups(t *testing.T) {
	groups, err := ParseGroups([]string{"default"})
	require.NoError(t, err)
	assert.True(t, Enabled(groups, GroupBuy))
	assert.True(t, Enabled(groups, GroupStoploss))
	assert.False(t, Enabled(groups, GroupTrailing))

	all, err := ParseGroups([]string{"all"})
	require.NoError(t, err)
	assert.True(t, Enabled(all, GroupTrailing))

	_, err = ParseGroups([]string{"bogus"})
	assert.Error(t, err)
}
