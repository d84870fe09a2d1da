package cli

import (
	"testing"

	"cuzdan/internal/config"
	"cuzdan/internal/highlight"
)

func TestHighlightOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want highlight.Options
	}{
		{
			name: "defaults",
			cfg:  config.Config{HighlightPastMonths: 3, HighlightFutureMonths: 3, HighlightIncludeCards: true},
			want: highlight.DefaultOptions(),
		},
		{
			name: "negative window is pinned",
			cfg:  config.Config{HighlightPastMonths: -2, HighlightFutureMonths: 1},
			want: highlight.Options{PastMonths: 0, FutureMonths: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighlightOptions(&tt.cfg); got != tt.want {
				t.Fatalf("HighlightOptions() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, "test")
	if logger.Component() != "test" {
		t.Fatalf("Component() = %q, want test", logger.Component())
	}
}

func TestInitAMQPDisabled(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "error"}, "test")
	if c := InitAMQP(logger, &config.Config{}, false); c != nil {
		t.Fatal("expected nil client without AMQP_URL")
	}
}
