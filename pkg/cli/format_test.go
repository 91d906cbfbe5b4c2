package cli

import "testing"

func TestFormatDuration(t *testing.T) {
	for ms, want := range map[int64]string{
		0:      "0ms",
		850:    "850ms",
		1000:   "1.0s",
		2340:   "2.3s",
		60000:  "1m0.0s",
		125500: "2m5.5s",
	} {
		if got := FormatDuration(ms); got != want {
			t.Errorf("FormatDuration(%d) = %q, want %q", ms, got, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	for n, want := range map[int64]string{
		512:      "512 B",
		1536:     "1.50 KB",
		25 << 20: "25.00 MB",
		3 << 30:  "3.00 GB",
	} {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatConfidence(t *testing.T) {
	tests := []struct {
		c    float64
		want string
	}{
		{0, "0% (low)"},
		{0.29, "29% (low)"},
		{0.3, "30% (medium)"},
		{0.85, "85% (high)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatConfidence(tt.c); got != tt.want {
				t.Errorf("FormatConfidence(%v) = %q, want %q", tt.c, got, tt.want)
			}
		})
	}
}
