package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestABIs_DeclareLedgerMethods(t *testing.T) {
	for _, m := range []string{"createTicket", "assignAnalyst", "assignCertifier", "validateTicket"} {
		_, ok := DSOCABI.Methods[m]
		assert.True(t, ok, "dsoc abi missing %s", m)
	}
	for _, m := range []string{"mint", "approveFor", "balanceOf"} {
		_, ok := CLTABI.Methods[m]
		assert.True(t, ok, "clt abi missing %s", m)
	}
	for _, m := range []string{"joinPool", "claimPoolReward", "pendingReward"} {
		_, ok := PoolABI.Methods[m]
		assert.True(t, ok, "pool abi missing %s", m)
	}
}

func TestPackCall_RoundTripsSelector(t *testing.T) {
	client := common.HexToAddress(clientAddr)

	data, err := PackCall(DSOCABI, "createTicket", big.NewInt(7), client, uint8(2), "ransomware")
	require.NoError(t, err)

	name, err := MethodOf(DSOCABI, data)
	require.NoError(t, err)
	assert.Equal(t, "createTicket", name)

	args, err := DSOCABI.Methods["createTicket"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, args[0].(*big.Int).Cmp(big.NewInt(7)))
	assert.Equal(t, client, args[1].(common.Address))
	assert.Equal(t, uint8(2), args[2].(uint8))
	assert.Equal(t, "ransomware", args[3].(string))
}

func TestPackCall_RejectsWrongArgs(t *testing.T) {
	_, err := PackCall(CLTABI, "mint", "not-an-address", big.NewInt(1))
	assert.Error(t, err)

	_, err = MethodOf(CLTABI, []byte{1, 2})
	assert.Error(t, err)
}

func TestSeverityCode(t *testing.T) {
	code, err := severityCode("critical")
	require.NoError(t, err)
	assert.Equal(t, uint8(3), code)

	_, err = severityCode("none")
	assert.True(t, IsKind(err, KindInvalidInput))
}
