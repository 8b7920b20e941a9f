package math

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBigInt(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestMulDivRounding", testMulDivRounding},
		{"TestBpsCeil", testBpsCeil},
		{"TestLessBps", testLessBps},
		{"TestGetAmountOut", testGetAmountOut},
		{"TestScale", testScale},
		{"TestGasConversion", testGasConversion},
		{"TestNetProfit", testNetProfit},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testMulDivRounding(t *testing.T) {
	assert.Equal(t, int64(3), MulDiv(big.NewInt(10), big.NewInt(1), big.NewInt(3)).Int64())
	assert.Equal(t, int64(4), MulDivCeil(big.NewInt(10), big.NewInt(1), big.NewInt(3)).Int64())
	assert.Equal(t, int64(5), MulDivCeil(big.NewInt(10), big.NewInt(1), big.NewInt(2)).Int64())
	assert.Equal(t, int64(0), MulDivCeil(big.NewInt(0), big.NewInt(7), big.NewInt(3)).Int64())
}

func testBpsCeil(t *testing.T) {
	assert.Equal(t, int64(9), BpsCeil(big.NewInt(1000), 90).Int64())
	assert.Equal(t, int64(1), BpsCeil(big.NewInt(1000), 9).Int64())
	assert.Equal(t, int64(0), BpsCeil(big.NewInt(1000), 0).Int64())

	// 0.05% of 1 WETH
	amount, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, "500000000000000", BpsCeil(amount, 5).String())
}

func testLessBps(t *testing.T) {
	assert.Equal(t, int64(995), LessBps(big.NewInt(1000), 50).Int64())
	assert.Equal(t, int64(1000), LessBps(big.NewInt(1000), 0).Int64())
	assert.Equal(t, int64(0), LessBps(big.NewInt(1000), 10000).Int64())
	assert.Equal(t, int64(9), LessBps(big.NewInt(10), 1).Int64())
}

func testGetAmountOut(t *testing.T) {
	// 997/1000 on a 1:1 pool of 1,000,000 each
	out := GetAmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000), 30)
	assert.Equal(t, int64(996), out.Int64())

	// fee free pool is exact x*y=k floor
	out = GetAmountOut(big.NewInt(100), big.NewInt(1000), big.NewInt(1000), 0)
	assert.Equal(t, int64(90), out.Int64())

	assert.Equal(t, int64(0), GetAmountOut(big.NewInt(0), big.NewInt(10), big.NewInt(10), 30).Int64())
	assert.Equal(t, int64(0), GetAmountOut(big.NewInt(10), big.NewInt(0), big.NewInt(10), 30).Int64())
}

func testScale(t *testing.T) {
	assert.Equal(t, int64(1020), Scale(big.NewInt(1000), big.NewInt(1000), big.NewInt(1020)).Int64())
	assert.Equal(t, int64(1005), Scale(big.NewInt(1020), big.NewInt(1020), big.NewInt(1005)).Int64())
	assert.Equal(t, int64(502), Scale(big.NewInt(500), big.NewInt(1000), big.NewInt(1005)).Int64())
	assert.Equal(t, int64(0), Scale(big.NewInt(500), big.NewInt(0), big.NewInt(1005)).Int64())
}

func testGasConversion(t *testing.T) {
	gwei := big.NewInt(1_000_000_000)
	wei := GasCost(new(big.Int).Mul(big.NewInt(20), gwei), 21000)
	assert.Equal(t, "420000000000000", wei.String())

	// 1 ETH buys 2000 USDC (6 decimals)
	rate := big.NewInt(2_000_000_000)
	assert.Equal(t, int64(840_000), WeiToToken(wei, rate).Int64())

	// WETH itself: one to one, rounding up
	assert.Equal(t, wei.String(), WeiToToken(wei, WeiPerToken).String())
	assert.Equal(t, int64(1), WeiToToken(big.NewInt(1), big.NewInt(1)).Int64())
}

func testNetProfit(t *testing.T) {
	net := NetProfit(big.NewInt(1005), big.NewInt(1000), big.NewInt(9), big.NewInt(5))
	assert.Equal(t, int64(-9), net.Int64())

	net = NetProfit(big.NewInt(1030), big.NewInt(1000), big.NewInt(9), big.NewInt(5))
	assert.Equal(t, int64(16), net.Int64())
}
