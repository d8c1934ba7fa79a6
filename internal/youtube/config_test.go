package youtube

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{name: "valid API key", cfg: &Config{APIKey: "AIzaSyExampleKey"}, wantErr: nil},
		{name: "missing API key", cfg: &Config{}, wantErr: ErrMissingAPIKey},
		{name: "nil config", cfg: nil, wantErr: ErrMissingAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
