package contract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

var panicSelector = crypto.Keccak256([]byte("Panic(uint256)"))[:4]

// Messages of require() based executors that mean the caller is not the owner.
var ownerMessages = []string{
	"caller is not the owner",
	"ownable: caller is not the owner",
}

// PackError encodes a custom executor error with its arguments as revert data.
func PackError(name string, args ...interface{}) ([]byte, error) {
	e, ok := ExecutorABI.Errors[name]
	if !ok {
		return nil, fmt.Errorf("unknown executor error %q", name)
	}
	data, err := e.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", name, err)
	}
	return append(append([]byte{}, e.ID[:4]...), data...), nil
}

// DecodeRevert names the reason carried by revert data.
func DecodeRevert(data []byte) string {
	if len(data) < 4 {
		return "reverted without reason"
	}
	selector := data[:4]
	for name, e := range ExecutorABI.Errors {
		if bytes.Equal(selector, e.ID[:4]) {
			return name
		}
	}
	if bytes.Equal(selector, panicSelector) {
		return fmt.Sprintf("Panic(%s)", hexutil.Encode(data[4:]))
	}
	if msg, err := abi.UnpackRevert(data); err == nil {
		return normalizeMessage(msg)
	}
	return fmt.Sprintf("unknown revert %s", hexutil.Encode(selector))
}

func normalizeMessage(msg string) string {
	lower := strings.ToLower(strings.TrimSpace(msg))
	for _, m := range ownerMessages {
		if lower == m {
			return "Unauthorized"
		}
	}
	for _, name := range []string{"SlippageExceeded", "InsufficientRepayment", "Unauthorized"} {
		if strings.EqualFold(msg, name) {
			return name
		}
	}
	return msg
}

// RevertReason extracts the revert reason of a failed eth_call or gas estimate.
// ok is false when err is not an execution revert.
func RevertReason(err error) (reason string, ok bool) {
	if err == nil {
		return "", false
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, isStr := de.ErrorData().(string); isStr {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				return DecodeRevert(data), true
			}
		}
	}
	msg := err.Error()
	const prefix = "execution reverted"
	idx := strings.Index(msg, prefix)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimPrefix(strings.TrimSpace(msg[idx+len(prefix):]), ":")
	if rest = strings.TrimSpace(rest); rest == "" {
		return "reverted without reason", true
	}
	return normalizeMessage(rest), true
}

// BundleRevertReason names the revert of a transaction in a relay bundle
// simulation. revert is either hex revert data or an already decoded message.
func BundleRevertReason(errMsg, revert string) string {
	revert = strings.TrimSpace(revert)
	if strings.HasPrefix(revert, "0x") {
		if data, err := hexutil.Decode(revert); err == nil {
			return DecodeRevert(data)
		}
	}
	if revert != "" {
		return normalizeMessage(revert)
	}
	if reason, ok := RevertReason(errors.New(errMsg)); ok {
		return reason
	}
	if errMsg = strings.TrimSpace(errMsg); errMsg != "" {
		return errMsg
	}
	return "reverted without reason"
}
