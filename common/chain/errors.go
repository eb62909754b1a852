package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies chain failures for callers and users
type Kind string

const (
	KindUserRejected      Kind = "user_rejected"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindReverted          Kind = "reverted"
	KindNonce             Kind = "nonce"
	KindNetwork           Kind = "network"
	KindInvalidInput      Kind = "invalid_input"
	KindUnknown           Kind = "unknown"
)

// Error is a classified chain failure
type Error struct {
	Kind    Kind
	Op      string
	Message string // safe to show to users
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a chain error of kind k
func IsKind(err error, k Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

var classifiers = []struct {
	kind    Kind
	needles []string
	message string
}{
	{KindUserRejected, []string{"user rejected", "user denied", "rejected the request", "4001"}, "Transaction was rejected in the wallet."},
	{KindInsufficientFunds, []string{"insufficient funds", "exceeds balance", "insufficient balance", "insufficient allowance"}, "Insufficient funds for this transaction."},
	{KindNonce, []string{"nonce too low", "nonce too high", "replacement transaction underpriced", "already known"}, "Transaction nonce conflict, please retry."},
	{KindReverted, []string{"execution reverted", "revert"}, "The contract rejected this transaction."},
	{KindNetwork, []string{"connection refused", "no such host", "dial tcp", "timeout", "deadline exceeded", "eof", "connection reset", "503", "502"}, "Blockchain network is unavailable, please retry."},
}

// Classify maps a raw chain error to a classified *Error. Errors that are
// already classified are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var ce *Error
	if errors.As(err, &ce) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindNetwork, Op: op, Message: "Blockchain request timed out.", Err: err}
	}

	text := strings.ToLower(err.Error())
	for _, c := range classifiers {
		for _, n := range c.needles {
			if strings.Contains(text, n) {
				msg := c.message
				if c.kind == KindReverted {
					if reason := revertReason(err.Error()); reason != "" {
						msg = "The contract rejected this transaction: " + reason
					}
				}
				return &Error{Kind: c.kind, Op: op, Message: msg, Err: err}
			}
		}
	}

	return &Error{Kind: KindUnknown, Op: op, Message: "Blockchain transaction failed.", Err: err}
}

func revertReason(text string) string {
	const marker = "execution reverted:"
	idx := strings.Index(strings.ToLower(text), marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(text[idx+len(marker):])
}
