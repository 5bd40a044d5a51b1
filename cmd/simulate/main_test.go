package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOperationMetricsStats(t *testing.T) {
	var om OperationMetrics
	for i := 1; i <= 20; i++ {
		om.Record(time.Duration(i)*time.Millisecond, i%2 == 0, i%5 == 0)
	}

	assert.EqualValues(t, 20, om.Total)
	assert.EqualValues(t, 10, om.Success)
	assert.EqualValues(t, 2, om.Conflict, "5 and 15 are odd multiples of five")
	assert.EqualValues(t, 8, om.Error)

	avg, min, max, p50, p95 := om.Stats()
	assert.Equal(t, 10500*time.Microsecond, avg)
	assert.Equal(t, time.Millisecond, min)
	assert.Equal(t, 20*time.Millisecond, max)
	assert.Equal(t, 11*time.Millisecond, p50)
	assert.Equal(t, 20*time.Millisecond, p95)
}

func TestValidateConfig(t *testing.T) {
	valid := SimConfig{PostgresDSN: "postgres://localhost/dental", Workers: 2, Duration: time.Second, SearchDays: 7, StormSize: 10}
	assert.NoError(t, validateConfig(valid))

	tests := []struct {
		name   string
		mutate func(*SimConfig)
	}{
		{"no dsn", func(c *SimConfig) { c.PostgresDSN = "" }},
		{"no workers", func(c *SimConfig) { c.Workers = 0 }},
		{"no duration", func(c *SimConfig) { c.Duration = 0 }},
		{"no search window", func(c *SimConfig) { c.SearchDays = 0 }},
		{"storm of one", func(c *SimConfig) { c.StormSize = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}
