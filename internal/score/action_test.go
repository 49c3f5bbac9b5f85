package score

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAction(t *testing.T) {
	cases := []struct {
		in   string
		want CuedAction
	}{
		{"playFanfare", Procedure("playFanfare")},
		{"  $drum_2 ", Procedure("$drum_2")},
		{"_", Procedure("_")},
		{"doSomething(1,2,3)", Statement("doSomething(1,2,3)")},
		{" doSomething(1,2,3) ", Statement("doSomething(1,2,3)")},
		{"2fast", Statement("2fast")},
		{"a b", Statement("a b")},
		{"", Statement("")},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseAction(tc.in))
		})
	}
}

func TestCueDecodeShapes(t *testing.T) {
	var c Cue
	require.NoError(t, json.Unmarshal([]byte(`{"time":57,"code":"playFanfare()"}`), &c))
	assert.Equal(t, Cue{Time: 57, Action: Statement("playFanfare()")}, c)

	require.NoError(t, json.Unmarshal([]byte(`{"time":3,"procedure":"kick"}`), &c))
	assert.Equal(t, Cue{Time: 3, Action: Procedure("kick")}, c)

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"time":1}`), &c), ErrNoAction)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"time":1,"code":"x()","procedure":"x"}`), &c), ErrAmbiguousAction)
	assert.ErrorIs(t, yaml.Unmarshal([]byte("time: 1\n"), &c), ErrNoAction)
}

func TestCueEncodeUsesOneKey(t *testing.T) {
	data, err := json.Marshal(Cue{Time: 12, Action: Procedure("snare")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":12,"procedure":"snare"}`, string(data))

	data, err = yaml.Marshal(Cue{Time: 12, Action: Statement("hat(3)")})
	require.NoError(t, err)
	assert.Equal(t, "time: 12\ncode: hat(3)\n", string(data))
}

func TestCycleModulusOptional(t *testing.T) {
	var c Cycle
	require.NoError(t, json.Unmarshal([]byte(`{"name":"BD","isActive":false,"period":24,"code":"playKick()"}`), &c))
	assert.Equal(t, Cycle{Name: "BD", Period: 24, Action: Statement("playKick()")}, c)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "modulus")

	c.Modulus = 6
	data, err = yaml.Marshal(c)
	require.NoError(t, err)
	var back Cycle
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}

func TestCueRoundTrip(t *testing.T) {
	for _, c := range []Cue{
		{Time: 0, Action: Procedure("intro")},
		{Time: 4321, Action: Statement("channel('ch1').play(60, 100, 12)")},
	} {
		data, err := json.Marshal(c)
		require.NoError(t, err)
		var back Cue
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, c, back)
	}
}
