package dispatcher

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// Submitter broadcasts a signed transaction.
type Submitter interface {
	Submit(ctx context.Context, tx *types.Transaction) error
}

// TxSender is satisfied by *ethclient.Client.
type TxSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// PublicSubmitter sends transactions to the public mempool through the node.
type PublicSubmitter struct {
	sender TxSender
}

func NewPublicSubmitter(sender TxSender) *PublicSubmitter {
	return &PublicSubmitter{sender: sender}
}

func (p *PublicSubmitter) Submit(ctx context.Context, tx *types.Transaction) error {
	if err := p.sender.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to send transaction %s: %w", tx.Hash().Hex(), err)
	}
	return nil
}
