package solana

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"time"

	"aetherlock-backend/core/escrow"

	logging "github.com/ipfs/go-log/v2"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

var logger = logging.Logger("escrow-client")

// Well-known program addresses.
var (
	SystemProgramID   = mustParse("11111111111111111111111111111111")
	TokenProgramID    = mustParse("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenID = mustParse("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// MaxAttestationAge bounds the skew the program accepts between an
// attestation's timestamp and submission. Stale attestations are rejected
// here rather than burning a transaction fee on a guaranteed on-chain error.
const MaxAttestationAge = 5 * time.Minute

func mustParse(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// DeriveAssociatedTokenAddress derives a wallet's token account for a mint.
func DeriveAssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress([][]byte{wallet[:], TokenProgramID[:], mint[:]}, AssociatedTokenID)
	return pk, err
}

// Config parameterizes the escrow client. Fee share and dispute window are
// protocol configuration, never inferred from display copy.
type Config struct {
	ProgramID     PublicKey
	Treasury      PublicKey
	FeePercent    int
	DisputeWindow time.Duration
}

// Client drives the on-chain escrow program through its lifecycle. It holds
// no local escrow state: every operation re-reads on-chain status first, so
// the chain's own preconditions substitute for client-side locking and a
// crashed driver can simply be restarted.
type Client struct {
	rpc      RPC
	cfg      Config
	operator ed25519.PrivateKey
}

// NewClient creates an escrow client. The operator key pays transaction fees
// and signs submissions; it is distinct from the attestation signing key.
func NewClient(rpc RPC, cfg Config, operator ed25519.PrivateKey) *Client {
	return &Client{rpc: rpc, cfg: cfg, operator: operator}
}

// TxResult reports the outcome of a state transition.
type TxResult struct {
	Signature     string `json:"signature,omitempty"`
	EscrowAddress string `json:"escrow_address"`
	// AlreadyApplied is set when the requested transition was found already
	// done on chain; the call is then a no-op returning the existing state.
	AlreadyApplied bool `json:"already_applied,omitempty"`
}

// CreateParams describes a new escrow.
type CreateParams struct {
	ID              escrow.ID
	Seller          string
	TokenMint       string
	Amount          uint64
	Expiry          int64
	TaskDescription string
	AIAgentPubkey   string
}

// VaultAddress derives the vault account that receives deposits for an
// escrow. Funding payments go here, never to a counterparty wallet.
func (c *Client) VaultAddress(id escrow.ID) (PublicKey, error) {
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return PublicKey{}, errors.Wrap(err, "derive escrow address")
	}
	vault, _, err := DeriveVaultAddress(c.cfg.ProgramID, escrowAddr)
	if err != nil {
		return PublicKey{}, errors.Wrap(err, "derive vault address")
	}
	return vault, nil
}

// GetEscrow fetches and decodes the escrow account, or UnknownEscrowError if
// it does not exist.
func (c *Client) GetEscrow(ctx context.Context, id escrow.ID) (*escrow.Escrow, error) {
	addr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return nil, errors.Wrap(err, "derive escrow address")
	}
	data, exists, err := c.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, escrow.UnknownEscrowError{EscrowID: id.String()}
	}
	return DecodeEscrowAccount(data)
}

// CreateEscrow initializes a new escrow account. Requires that no account
// exists yet for the id; an existing account makes the call a no-op
// returning its address.
func (c *Client) CreateEscrow(ctx context.Context, params CreateParams) (*TxResult, error) {
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, params.ID)
	if err != nil {
		return nil, errors.Wrap(err, "derive escrow address")
	}

	if _, exists, err := c.rpc.GetAccountInfo(ctx, escrowAddr.String()); err != nil {
		return nil, err
	} else if exists {
		return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
	}

	seller, err := ParsePublicKey(params.Seller)
	if err != nil {
		return nil, err
	}
	mint, err := ParsePublicKey(params.TokenMint)
	if err != nil {
		return nil, err
	}
	agent, err := ParsePublicKey(params.AIAgentPubkey)
	if err != nil {
		return nil, err
	}
	metadataHash := sha256.Sum256([]byte(params.TaskDescription))

	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: mint},
			{Pubkey: SystemProgramID},
		},
		Data: InitializeEscrowData(params.ID, seller, params.Amount, params.Expiry, metadataHash, agent),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", params.ID, "address", escrowAddr).Info("escrow created")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

// DepositFunds transfers the committed amount from the buyer's token account
// into the escrow vault. Requires status Created.
func (c *Client) DepositFunds(ctx context.Context, id escrow.ID) (*TxResult, error) {
	esc, err := c.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return nil, err
	}
	if esc.Status != escrow.StatusCreated {
		if esc.Status >= escrow.StatusFunded {
			return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
		}
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "deposit_funds", Status: esc.Status}
	}

	vaultAddr, _, err := DeriveVaultAddress(c.cfg.ProgramID, escrowAddr)
	if err != nil {
		return nil, err
	}
	buyer, err := ParsePublicKey(esc.Buyer)
	if err != nil {
		return nil, err
	}
	mint, err := ParsePublicKey(esc.TokenMint)
	if err != nil {
		return nil, err
	}
	buyerToken, err := DeriveAssociatedTokenAddress(buyer, mint)
	if err != nil {
		return nil, err
	}

	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: buyerToken, IsWritable: true},
			{Pubkey: TokenProgramID},
			{Pubkey: SystemProgramID},
		},
		Data: DepositFundsData(),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", id).Info("funds deposited")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

// SubmitVerification posts a signed attestation. Requires status Funded. The
// program independently verifies the signature against the escrow's stored
// AI agent key before accepting.
func (c *Client) SubmitVerification(ctx context.Context, att *escrow.Attestation) (*TxResult, error) {
	if age := time.Since(time.Unix(att.Timestamp, 0)); age > MaxAttestationAge {
		return nil, errors.Errorf("attestation is stale: signed %s ago, max %s", age.Round(time.Second), MaxAttestationAge)
	}
	esc, err := c.GetEscrow(ctx, att.EscrowID)
	if err != nil {
		return nil, err
	}
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, att.EscrowID)
	if err != nil {
		return nil, err
	}
	if esc.Status != escrow.StatusFunded {
		if esc.Status == escrow.StatusVerificationSubmitted {
			return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
		}
		return nil, escrow.InvalidStateTransitionError{EscrowID: att.EscrowID, Operation: "submit_verification", Status: esc.Status}
	}

	agent := PublicKey(att.PublicKey)
	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: agent},
		},
		Data: SubmitVerificationData(att.Result, att.Digest, att.Timestamp, att.Signature),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", att.EscrowID, "result", att.Result).Info("verification submitted")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

// ReleaseFunds pays the vault balance to the seller minus the protocol fee
// share. Requires a positive submitted verification and no open dispute
// window.
func (c *Client) ReleaseFunds(ctx context.Context, id escrow.ID) (*TxResult, error) {
	esc, err := c.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return nil, err
	}
	if esc.Status == escrow.StatusReleased {
		return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
	}
	if esc.Status != escrow.StatusVerificationSubmitted || esc.VerificationResult == nil || !*esc.VerificationResult {
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "release_funds", Status: esc.Status}
	}
	if esc.DisputeDeadline != nil && time.Now().Unix() < *esc.DisputeDeadline {
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "release_funds", Status: esc.Status}
	}

	vaultAddr, _, err := DeriveVaultAddress(c.cfg.ProgramID, escrowAddr)
	if err != nil {
		return nil, err
	}
	seller, err := ParsePublicKey(esc.Seller)
	if err != nil {
		return nil, err
	}
	mint, err := ParsePublicKey(esc.TokenMint)
	if err != nil {
		return nil, err
	}
	sellerToken, err := DeriveAssociatedTokenAddress(seller, mint)
	if err != nil {
		return nil, err
	}
	treasuryToken, err := DeriveAssociatedTokenAddress(c.cfg.Treasury, mint)
	if err != nil {
		return nil, err
	}

	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: sellerToken, IsWritable: true},
			{Pubkey: treasuryToken, IsWritable: true},
			{Pubkey: TokenProgramID},
		},
		Data: ReleaseFundsData(),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", id).Info("funds released")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

// RaiseDispute halts automatic release. Permitted from Funded or
// VerificationSubmitted, by the escrow's buyer or seller only.
func (c *Client) RaiseDispute(ctx context.Context, id escrow.ID, caller string, reasonHash [32]byte) (*TxResult, error) {
	esc, err := c.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return nil, err
	}
	if esc.Status == escrow.StatusDisputed {
		return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
	}
	if esc.Status != escrow.StatusFunded && esc.Status != escrow.StatusVerificationSubmitted {
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "raise_dispute", Status: esc.Status}
	}
	if caller != esc.Buyer && caller != esc.Seller {
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "raise_dispute", Status: esc.Status}
	}

	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
		},
		Data: RaiseDisputeData(reasonHash),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", id, "caller", caller).Info("dispute raised")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

// RefundBuyer returns the vault balance to the buyer. Permitted when a
// funded escrow has expired or a submitted verification came back negative.
func (c *Client) RefundBuyer(ctx context.Context, id escrow.ID) (*TxResult, error) {
	esc, err := c.GetEscrow(ctx, id)
	if err != nil {
		return nil, err
	}
	escrowAddr, _, err := DeriveEscrowAddress(c.cfg.ProgramID, id)
	if err != nil {
		return nil, err
	}
	if esc.Status == escrow.StatusRefunded {
		return &TxResult{EscrowAddress: escrowAddr.String(), AlreadyApplied: true}, nil
	}
	expired := esc.Status == escrow.StatusFunded && time.Now().Unix() > esc.Expiry
	failed := esc.Status == escrow.StatusVerificationSubmitted && esc.VerificationResult != nil && !*esc.VerificationResult
	if !expired && !failed {
		return nil, escrow.InvalidStateTransitionError{EscrowID: id, Operation: "refund_buyer", Status: esc.Status}
	}

	vaultAddr, _, err := DeriveVaultAddress(c.cfg.ProgramID, escrowAddr)
	if err != nil {
		return nil, err
	}
	buyer, err := ParsePublicKey(esc.Buyer)
	if err != nil {
		return nil, err
	}
	mint, err := ParsePublicKey(esc.TokenMint)
	if err != nil {
		return nil, err
	}
	buyerToken, err := DeriveAssociatedTokenAddress(buyer, mint)
	if err != nil {
		return nil, err
	}

	ins := Instruction{
		ProgramID: c.cfg.ProgramID,
		Accounts: []AccountMeta{
			{Pubkey: c.operatorKey(), IsSigner: true, IsWritable: true},
			{Pubkey: escrowAddr, IsWritable: true},
			{Pubkey: vaultAddr, IsWritable: true},
			{Pubkey: buyerToken, IsWritable: true},
			{Pubkey: TokenProgramID},
		},
		Data: RefundBuyerData(),
	}

	sig, err := c.send(ctx, ins)
	if err != nil {
		return nil, err
	}
	logger.With("escrow", id).Info("buyer refunded")
	return &TxResult{Signature: sig, EscrowAddress: escrowAddr.String()}, nil
}

func (c *Client) operatorKey() PublicKey {
	var pk PublicKey
	copy(pk[:], c.operator.Public().(ed25519.PublicKey))
	return pk
}

func (c *Client) send(ctx context.Context, ins Instruction) (string, error) {
	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", err
	}
	tx, err := BuildTransaction(c.operator, blockhash, []Instruction{ins})
	if err != nil {
		return "", errors.Wrap(err, "build transaction")
	}
	return c.rpc.SendTransaction(ctx, tx)
}

// OperatorFromBase58 decodes an operator secret key.
func OperatorFromBase58(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode operator key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("operator key must decode to %d bytes", ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}
