package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimationTypeValid(t *testing.T) {
	require.True(t, EstimationFibonacci.Valid())
	require.True(t, EstimationTShirt.Valid())
	require.False(t, EstimationType("HOURS").Valid())
	require.False(t, EstimationType("").Valid())
}

func TestEstimationTypeValues(t *testing.T) {
	require.Equal(t, []string{"0", "1", "2", "3", "5", "8", "13", "21"}, EstimationFibonacci.Values())
	require.Equal(t, []string{"XS", "S", "M", "L", "XL", "XXL"}, EstimationTShirt.Values())
}

func TestIsSentinel(t *testing.T) {
	require.True(t, IsSentinel(VoteUnknown))
	require.True(t, IsSentinel(VotePass))
	require.False(t, IsSentinel("5"))
	require.False(t, IsSentinel(""))
}
