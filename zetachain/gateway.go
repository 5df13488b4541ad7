package zetachain

import (
	"context"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var logger = logging.Logger("gateway")

// Gateway advances gateway-side escrow records as verification verdicts
// arrive from the oracle network. The delivering channel may redeliver, so
// every transition is idempotent: a repeated callback for a record already
// past the target state is accepted as a no-op.
type Gateway struct {
	store Store
}

// NewGateway creates a gateway state machine over the given record store.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// Register records a newly initiated cross-chain escrow.
func (g *Gateway) Register(ctx context.Context, rec EscrowRecord) error {
	if err := g.store.Create(ctx, rec); err != nil {
		return errors.Wrap(err, "register gateway escrow")
	}
	logger.With("escrow", rec.ID, "source", rec.SourceChain).Info("gateway escrow registered")
	return nil
}

// RequestVerification marks an escrow as awaiting an oracle verdict.
func (g *Gateway) RequestVerification(ctx context.Context, id GatewayID) (*EscrowRecord, error) {
	applied, err := g.store.Transition(ctx, id, []GatewayStatus{StatusCreated}, StatusVerificationRequested, nil, "")
	if err != nil {
		return nil, err
	}
	rec, getErr := g.store.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if !applied && rec.Status == StatusCreated {
		return nil, errors.Errorf("escrow %s could not enter verification", id)
	}
	return rec, nil
}

// HandleCallback applies an inbound verification callback. Unknown ids fail
// that request with UnknownEscrowError; duplicates of an already-applied
// callback leave the record untouched.
func (g *Gateway) HandleCallback(ctx context.Context, id GatewayID, verified bool) (*EscrowRecord, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch rec.Status {
	case StatusVerified, StatusResolved:
		// redelivery from the oracle network
		logger.With("escrow", id, "status", rec.Status).Debug("duplicate verification callback ignored")
		return rec, nil
	case StatusCreated, StatusVerificationRequested:
		applied, err := g.store.Transition(ctx, id,
			[]GatewayStatus{StatusCreated, StatusVerificationRequested}, StatusVerified, &verified, "")
		if err != nil {
			return nil, err
		}
		if !applied {
			// lost the race to a concurrent delivery; re-read and accept
			return g.store.Get(ctx, id)
		}
		logger.With("escrow", id, "verified", verified).Info("gateway escrow verified")
		return g.store.Get(ctx, id)
	default:
		return nil, errors.Errorf("escrow %s has unexpected status %s", id, rec.Status)
	}
}

// Resolve settles a verified escrow, producing the outbound cross-chain
// message that releases funds to the seller or refunds the buyer.
func (g *Gateway) Resolve(ctx context.Context, id GatewayID, txHash string) (*Message, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusResolved {
		return g.settlementMessage(rec), nil
	}
	if rec.Status != StatusVerified || rec.VerificationResult == nil {
		return nil, errors.Errorf("escrow %s not ready to resolve (status %s)", id, rec.Status)
	}

	applied, err := g.store.Transition(ctx, id, []GatewayStatus{StatusVerified}, StatusResolved, nil, txHash)
	if err != nil {
		return nil, err
	}
	if !applied {
		rec, err = g.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return g.settlementMessage(rec), nil
	}

	rec, err = g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	msg := g.settlementMessage(rec)
	logger.With("escrow", id, "action", msg.Action).Info("gateway escrow resolved")
	return msg, nil
}

func (g *Gateway) settlementMessage(rec *EscrowRecord) *Message {
	msg := &Message{EscrowID: rec.ID, Amount: rec.Amount}
	if rec.VerificationResult != nil && *rec.VerificationResult {
		msg.Action = ActionReleaseEscrow
		copy(msg.Recipient[:], []byte(rec.Seller))
	} else {
		msg.Action = ActionRefundEscrow
		copy(msg.Recipient[:], []byte(rec.Buyer))
	}
	return msg
}
