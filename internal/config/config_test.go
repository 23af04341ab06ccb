package config

import "testing"

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "123", want: []int64{123}},
		{in: "123, 456 ,789", want: []int64{123, 456, 789}},
		{in: "123,abc", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseIDList(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseIDList(%q) error = %v", tt.in, err)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("parseIDList(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("parseIDList(%q)[%d] = %d, want %d", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			BotToken:         "t",
			MongoURI:         "mongodb://localhost",
			MoviesChannel:    -1,
			WebseriesChannel: -2,
			AnimeChannel:     -3,
			RatePerSecond:    0.5,
			RetryAttempts:    5,
		}
	}
	if err := base().validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.BotToken = ""
	if err := c.validate(); err == nil {
		t.Error("missing token accepted")
	}

	c = base()
	c.AnimeChannel = 0
	if err := c.validate(); err == nil {
		t.Error("missing channel accepted")
	}

	c = base()
	c.RatePerSecond = 0
	if err := c.validate(); err == nil {
		t.Error("zero rate accepted")
	}
}
