package scan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const unit = "a1b2c3d4-e5f6-47a8-89b0-123456789abc"

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "bare", raw: unit, want: unit, ok: true},
		{name: "uppercase", raw: "A1B2C3D4-E5F6-47A8-89B0-123456789ABC", want: unit, ok: true},
		{name: "url path", raw: "https://x/p/" + unit, want: unit, ok: true},
		{name: "url query", raw: "https://trace.example.com/passport?id=" + unit + "&src=qr", want: unit, ok: true},
		{name: "control chars", raw: "\x02" + unit + "\r\n", want: unit, ok: true},
		{name: "prefix suffix noise", raw: "]Q1" + unit + "###", want: unit, ok: true},
		{name: "first of two", raw: unit + " 00000000-0000-0000-0000-000000000001", want: unit, ok: true},
		{name: "empty", raw: "", ok: false},
		{name: "too short group", raw: "a1b2c3d-e5f6-47a8-89b0-123456789abc", ok: false},
		{name: "non hex", raw: "g1b2c3d4-e5f6-47a8-89b0-123456789abc", ok: false},
		{name: "plain serial", raw: "SN-000123", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(tc.raw)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	got, ok := Normalize(" A1B2C3D4-E5F6-47A8-89B0-123456789ABC ")
	require.True(t, ok)
	require.Equal(t, unit, got)

	_, ok = Normalize("https://x/p/" + unit)
	require.False(t, ok)

	_, ok = Normalize("urn:uuid:" + unit)
	require.False(t, ok)
}
