package domain

import "testing"

func TestEncodeCursor(t *testing.T) {
	tests := []struct {
		id   int64
		want string
	}{
		{0, "chg_000000000000"},
		{1, "chg_000000000001"},
		{42, "chg_000000000042"},
		{999999999999, "chg_999999999999"},
		{1000000000000, "chg_1000000000000"},
	}

	for _, tt := range tests {
		if got := EncodeCursor(tt.id); got != tt.want {
			t.Errorf("EncodeCursor(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestDecodeCursor(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
		want   int64
	}{
		{"empty string", "", 0},
		{"encoded zero", "chg_000000000000", 0},
		{"encoded id", "chg_000000000042", 42},
		{"bare integer", "42", 42},
		{"unpadded with prefix", "chg_7", 7},
		{"garbage", "not-a-cursor", 0},
		{"negative", "chg_-5", 0},
		{"trailing junk", "chg_12x", 0},
		{"beyond padding", "chg_1000000000000", 1000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeCursor(tt.cursor); got != tt.want {
				t.Errorf("DecodeCursor(%q) = %d, want %d", tt.cursor, got, tt.want)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	for _, id := range []int64{0, 1, 500, 123456789012} {
		if got := DecodeCursor(EncodeCursor(id)); got != id {
			t.Errorf("DecodeCursor(EncodeCursor(%d)) = %d", id, got)
		}
	}
}
