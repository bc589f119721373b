package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in       string
		target   string
		insecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317/v1/traces", "collector:4317", true},
		{"https://collector.example.com:4317", "collector.example.com:4317", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			target, insecure, err := parseEndpoint(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.insecure, insecure)
		})
	}

	_, _, err := parseEndpoint("http://")
	assert.Error(t, err)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	tr, err := Setup(context.Background(), "", "iqp-test")
	require.NoError(t, err)
	require.NotNil(t, tr.TracerProvider)
	assert.NoError(t, tr.Shutdown(context.Background()))
}
