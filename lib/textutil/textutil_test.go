package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "台北", NormalizeName("  台 北\n"))
	require.Equal(t, "zuoying", NormalizeName("Zuo Ying"))
}

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"08-2-12-3-045-0123": "0821230450123",
		"1234":               "1234",
		"ab-":                "",
		"１２3":                "3",
	}
	for input, expected := range cases {
		require.Equal(t, expected, DigitsOnly(input), input)
	}
}
