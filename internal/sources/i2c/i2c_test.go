package i2c

import (
	"testing"

	"github.com/expr-lang/expr"
	"github.com/stretchr/testify/require"

	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/message"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
)

func TestDerivedEnvHasOneSlotPerDevice(t *testing.T) {
	cfg := Config{
		Ina219s:  []Ina219{{Name: "batt_v"}},
		Ads1015s: []Ads1015{{Name: "solar_i"}},
	}
	env := derivedEnv(cfg)
	require.Contains(t, env, "batt_v")
	require.Contains(t, env, "solar_i")
}

func TestDerivedExpressionEvaluatesAgainstReadings(t *testing.T) {
	env := map[string]float64{"voltage": 0, "current": 0}
	prog, err := expr.Compile("voltage * current", expr.Env(env))
	require.NoError(t, err)

	out, err := expr.Run(prog, map[string]float64{"voltage": 12.0, "current": 2.5})
	require.NoError(t, err)
	require.Equal(t, 30.0, out)
}

func TestPollFrequencyDefaultsWhenUnset(t *testing.T) {
	s := New(0x09, Config{}, fifo.New(), signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))
	require.Equal(t, 1.0, s.pollFrequency())

	s.Cfg.Frequency = 5
	require.Equal(t, 5.0, s.pollFrequency())
}

func TestChannelsDescribesDevicesAndDerived(t *testing.T) {
	q := fifo.New()
	s := New(0x09, Config{
		Bus:      "/dev/i2c-1",
		Ina219s:  []Ina219{{Name: "batt_v", Address: 0x40, Channel: 0x10}},
		Ads1015s: []Ads1015{{Name: "solar_i", Address: 0x48, Channel: 0x11}},
		Derived:  []Derived{{Name: "batt_power", Channel: 0x12, Expression: "batt_v * solar_i"}},
	}, q, signals.New(), logging.New(logging.LevelCrit, logging.LevelCrit))

	require.NoError(t, s.Channels())

	name, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.String_, name.DType)

	cm, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, message.StringArray_, cm.DType)

	raw, _ := cm.ArrayVal.Get(chanRaw)
	require.Equal(t, "Raw", raw.String())
	v, _ := cm.ArrayVal.Get(0x10)
	require.Equal(t, "batt_v", v.String())
	i, _ := cm.ArrayVal.Get(0x11)
	require.Equal(t, "solar_i", i.String())
	p, _ := cm.ArrayVal.Get(0x12)
	require.Equal(t, "batt_power", p.String())
}
