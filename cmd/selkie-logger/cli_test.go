package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/config"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/timer"
)

func TestParseI2CDescriptors(t *testing.T) {
	d, err := parseI2CDescriptors([]string{"0x40:0x10", "0x41:0x11:1.0:0.0"}, "ina219")
	require.NoError(t, err)
	require.Len(t, d, 2)
	require.Equal(t, uint8(0x40), d[0].Address)
	require.Equal(t, uint8(0x10), d[0].Channel)
	require.Equal(t, uint8(0x41), d[1].Address)
}

func TestParseI2CDescriptorsRejectsMalformed(t *testing.T) {
	_, err := parseI2CDescriptors([]string{"0x40"}, "ina219")
	require.Error(t, err)
}

func TestParseDerived(t *testing.T) {
	d, err := parseDerived([]string{"batt_power:0x45:voltage * current"})
	require.NoError(t, err)
	require.Len(t, d, 1)
	require.Equal(t, "batt_power", d[0].Name)
	require.Equal(t, uint8(0x45), d[0].Channel)
	require.Equal(t, "voltage * current", d[0].Expression)
}

func TestParseTopicsAssignsSequentialChannels(t *testing.T) {
	topics, err := parseTopics([]string{"N/+/battery/+/Dc/0/Voltage", "N/+/system/0/Ac/Power:inverter"})
	require.NoError(t, err)
	require.Len(t, topics, 2)
	require.Equal(t, "N/+/battery/+/Dc/0/Voltage", topics[0].Name)
	require.Equal(t, uint8(0x10), topics[0].Channel)
	require.Equal(t, "N/+/system/0/Ac/Power", topics[1].Name)
	require.Equal(t, uint8(0x11), topics[1].Channel)
}

func TestBuildSourceRejectsUnknownType(t *testing.T) {
	_, err := buildSource(config.SourceConfig{Type: "not-a-family"}, 10, nil, nil, nil)
	require.Error(t, err)
}

func TestBuildSourceTimerUsesDefaultFrequency(t *testing.T) {
	s, err := buildSource(config.SourceConfig{Type: "timer", SourceNum: 0x02}, 20, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "timer", s.Name())
	require.Equal(t, 20.0, s.(*timer.Source).Frequency)
}
