package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"wallet rejection", errors.New("MetaMask Tx Signature: User denied transaction signature."), KindUserRejected},
		{"rpc 4001", errors.New("code=4001, user rejected"), KindUserRejected},
		{"gas funds", errors.New("insufficient funds for gas * price + value"), KindInsufficientFunds},
		{"erc20 balance", errors.New("execution reverted: ERC20: transfer amount exceeds balance"), KindInsufficientFunds},
		{"revert", errors.New("execution reverted: ticket exists"), KindReverted},
		{"nonce", errors.New("nonce too low"), KindNonce},
		{"network", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), KindNetwork},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), KindNetwork},
		{"unknown", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("op", tt.err)
			var ce *Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.want, ce.Kind)
			assert.NotEmpty(t, ce.Message)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_RevertReasonInMessage(t *testing.T) {
	err := Classify("createTicket", errors.New("execution reverted: ticket exists"))
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "The contract rejected this transaction: ticket exists", ce.Message)
}

func TestClassify_KeepsClassifiedErrors(t *testing.T) {
	orig := &Error{Kind: KindInvalidInput, Op: "mint", Message: "bad"}
	assert.Same(t, orig, Classify("other", orig))
	assert.NoError(t, Classify("op", nil))
}
