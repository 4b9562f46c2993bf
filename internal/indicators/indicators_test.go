package indicators

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestComputeTrend(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous *float64
		want     Trend
	}{
		{"nil previous", 100, nil, Trend{Direction: TrendUnknown}},
		{"zero previous", 100, ptr(0), Trend{Direction: TrendUnknown}},
		{"unchanged", 100, ptr(100), Trend{Direction: TrendFlat, Magnitude: 0}},
		{"up ten percent", 110, ptr(100), Trend{Direction: TrendUp, Magnitude: 10}},
		{"down ten percent", 90, ptr(100), Trend{Direction: TrendDown, Magnitude: 10}},
		{"rounded to one decimal", 1033, ptr(1000), Trend{Direction: TrendUp, Magnitude: 3.3}},
		{"negative previous", -50, ptr(-100), Trend{Direction: TrendDown, Magnitude: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTrend(tt.current, tt.previous)
			assert.Equal(t, tt.want.Direction, got.Direction)
			assert.InDelta(t, tt.want.Magnitude, got.Magnitude, 1e-9)
		})
	}
}

func TestComputeTrendFlatBoundary(t *testing.T) {
	got := ComputeTrend(100.05, ptr(100))
	assert.Equal(t, TrendFlat, got.Direction)
	assert.InDelta(t, 0.05, got.Magnitude, 1e-9)

	got = ComputeTrend(100.2, ptr(100))
	assert.Equal(t, TrendUp, got.Direction)
	assert.InDelta(t, 0.2, got.Magnitude, 1e-9)
}

func TestTrendLabel(t *testing.T) {
	assert.Equal(t, "+10.0%", Trend{Direction: TrendUp, Magnitude: 10}.Label())
	assert.Equal(t, "-2.5%", Trend{Direction: TrendDown, Magnitude: 2.5}.Label())
	assert.Equal(t, "0.0%", Trend{Direction: TrendFlat, Magnitude: 0.04}.Label())
	assert.Equal(t, "n/a", Trend{}.Label())
}

func TestProgressStatus(t *testing.T) {
	tests := []struct {
		progress *float64
		want     Status
	}{
		{nil, StatusUnset},
		{ptr(100), StatusComplete},
		{ptr(250), StatusComplete},
		{ptr(85), StatusNear},
		{ptr(80), StatusNear},
		{ptr(79.9), StatusBelow},
		{ptr(-5), StatusBelow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProgressStatus(tt.progress))
	}
}

func TestProgress(t *testing.T) {
	assert.Nil(t, Progress(10, nil))
	assert.Nil(t, Progress(10, ptr(0)))

	p := Progress(45, ptr(50))
	require.NotNil(t, p)
	assert.InDelta(t, 90, *p, 1e-9)
	assert.Equal(t, StatusNear, ProgressStatus(p))
}

func TestJSONEncoding(t *testing.T) {
	data, err := json.Marshal(struct {
		Trend  Trend  `json:"trend"`
		Status Status `json:"status"`
	}{
		Trend:  Trend{Direction: TrendDown, Magnitude: 4.2},
		Status: StatusBelow,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"trend":{"direction":"down","magnitude":4.2},"status":"below"}`, string(data))
}

func TestJSONRoundTripOfNames(t *testing.T) {
	var decoded struct {
		Trend  Trend  `json:"trend"`
		Status Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"trend":{"direction":"up","magnitude":1.5},"status":"near"}`), &decoded))
	assert.Equal(t, TrendUp, decoded.Trend.Direction)
	assert.Equal(t, StatusNear, decoded.Status)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"sideways"}`), &decoded))
}
