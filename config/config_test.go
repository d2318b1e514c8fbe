package config

import (
	"testing"
	"time"
)

func TestParseSymbols(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"EURUSD", []string{"EURUSD"}},
		{"EURUSD,GBPUSD", []string{"EURUSD", "GBPUSD"}},
		{" EURUSD , GBPUSD ,", []string{"EURUSD", "GBPUSD"}},
		{"", nil},
		{",,", nil},
	}
	for _, tc := range cases {
		c := &Config{Symbols: tc.in}
		got := c.ParseSymbols()
		if len(got) != len(tc.want) {
			t.Errorf("ParseSymbols(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("ParseSymbols(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestParseWeekday(t *testing.T) {
	cases := []struct {
		in   string
		want time.Weekday
	}{
		{"Friday", time.Friday},
		{"friday", time.Friday},
		{"MONDAY", time.Monday},
		{"notaday", time.Sunday},
		{"", time.Sunday},
	}
	for _, tc := range cases {
		if got := ParseWeekday(tc.in, time.Sunday); got != tc.want {
			t.Errorf("ParseWeekday(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in           string
		wantH, wantM int
	}{
		{"21:00", 21, 0},
		{"17:30", 17, 30},
		{"0:05", 0, 5},
		{"25:00", 9, 9},
		{"12:75", 9, 9},
		{"noon", 9, 9},
		{"", 9, 9},
	}
	for _, tc := range cases {
		h, m := ParseClock(tc.in, 9, 9)
		if h != tc.wantH || m != tc.wantM {
			t.Errorf("ParseClock(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.wantH, tc.wantM)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR_SECONDS", "300")
	if got := getEnvDuration("TEST_DUR_SECONDS", time.Minute); got != 300*time.Second {
		t.Errorf("bare seconds: got %s, want 300s", got)
	}

	t.Setenv("TEST_DUR_GO", "5m")
	if got := getEnvDuration("TEST_DUR_GO", time.Minute); got != 5*time.Minute {
		t.Errorf("go duration: got %s, want 5m", got)
	}

	t.Setenv("TEST_DUR_BAD", "soon")
	if got := getEnvDuration("TEST_DUR_BAD", time.Minute); got != time.Minute {
		t.Errorf("bad value: got %s, want fallback", got)
	}

	if got := getEnvDuration("TEST_DUR_UNSET", 42*time.Second); got != 42*time.Second {
		t.Errorf("unset: got %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_INT", "17")
	if got := getEnvInt("TEST_INT", 5); got != 17 {
		t.Errorf("got %d, want 17", got)
	}
	t.Setenv("TEST_INT_BAD", "many")
	if got := getEnvInt("TEST_INT_BAD", 5); got != 5 {
		t.Errorf("bad value: got %d, want fallback 5", got)
	}
}
