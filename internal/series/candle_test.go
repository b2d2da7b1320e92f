package series

import (
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestIntervalMillis(t *testing.T) {
	tests := []struct {
		name     string
		interval string
		want     int64
		wantErr  bool
	}{
		{
			name:     "one minute",
			interval: "1m",
			want:     60_000,
		},
		{
			name:     "fifteen minute",
			interval: "15m",
			want:     900_000,
		},
		{
			name:     "one hour",
			interval: "1h",
			want:     3_600_000,
		},
		{
			name:     "one day",
			interval: "1d",
			want:     86_400_000,
		},
		{
			name:     "thirty second",
			interval: "30s",
			want:     30_000,
		},
		{
			name:     "unknown unit",
			interval: "3w",
			wantErr:  true,
		},
		{
			name:     "missing count",
			interval: "m",
			wantErr:  true,
		},
		{
			name:     "zero count",
			interval: "0m",
			wantErr:  true,
		},
	}

	for _, test := range tests {
		got, err := IntervalMillis(test.interval)
		if test.wantErr {
			if err == nil {
				t.Errorf("%s: expected an error", test.name)
			}
			continue
		}
		assert.NoError(t, err)
		if got != test.want {
			t.Errorf("%s: expected %d, got %d", test.name, test.want, got)
		}
	}
}

func TestSortAscending(t *testing.T) {
	candles := []Candle{
		{OpenTime: 180_000},
		{OpenTime: 60_000},
		{OpenTime: 120_000},
	}

	SortAscending(candles)

	assert.Equal(t, candles[0].OpenTime, int64(60_000))
	assert.Equal(t, candles[1].OpenTime, int64(120_000))
	assert.Equal(t, candles[2].OpenTime, int64(180_000))
}
