package main

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/freightroute/config"
	"github.com/shiva/freightroute/pkg/logger"
)

func TestEventSinks_NoneConfigured(t *testing.T) {
	sinks, err := eventSinks(config.EventsConfig{KafkaTopic: "route-events"}, logger.Nop{})
	require.NoError(t, err)
	assert.Empty(t, sinks)
}

func TestEventSinks_Kafka(t *testing.T) {
	sinks, err := eventSinks(config.EventsConfig{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "route-events"}, logger.Nop{})
	require.NoError(t, err)
	require.Len(t, sinks, 1)
	assert.Equal(t, "kafka", sinks[0].Name())
	assert.NoError(t, sinks[0].Close())
}

func TestOpenBackend_Memory(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Store: "memory"}}
	be, err := openBackend(context.Background(), cfg, logger.Nop{})
	require.NoError(t, err)
	defer be.Close()

	assert.NotNil(t, be.store)
	assert.NotNil(t, be.writer)
	assert.Empty(t, be.checks)
}

func TestCostModel(t *testing.T) {
	cfg := &config.Config{Cost: config.CostConfig{
		FuelPricePerLiter:       decimal.RequireFromString("1.65"),
		FuelConsumptionPer100Km: 11,
		AverageSpeedKmph:        70,
	}}
	m := costModel(cfg)
	assert.Equal(t, "1.65", m.FuelPricePerLiter.String())
	assert.Equal(t, 70.0, m.AverageSpeedKmph)
}
