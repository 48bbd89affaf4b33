package serial

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBaudToFlagKnownRates(t *testing.T) {
	flag, err := BaudToFlag(9600)
	require.NoError(t, err)
	require.Equal(t, uint32(unix.B9600), flag)
}

func TestBaudToFlagUnknownRate(t *testing.T) {
	_, err := BaudToFlag(12345)
	require.Error(t, err)
}

func TestFlagToBaudRoundTrip(t *testing.T) {
	for _, rate := range []int{0, 1200, 9600, 115200, 921600, 2000000} {
		flag, err := BaudToFlag(rate)
		require.NoError(t, err)
		got, err := FlagToBaud(flag)
		require.NoError(t, err)
		require.Equal(t, rate, got)
	}
}

func TestFlagToBaudUnknownFlag(t *testing.T) {
	_, err := FlagToBaud(0xDEADBEEF)
	require.Error(t, err)
}
