package solana

import (
	"crypto/sha256"
	"encoding/binary"

	"aetherlock-backend/core/escrow"
)

// Namespace tags for deterministic address derivation. These are part of the
// on-chain program's interface.
const (
	escrowSeed = "escrow"
	vaultSeed  = "vault"
)

// DeriveEscrowAddress derives the escrow account address from the program id
// and the escrow identifier.
func DeriveEscrowAddress(programID PublicKey, id escrow.ID) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(escrowSeed), id[:]}, programID)
}

// DeriveVaultAddress derives the vault sub-account holding the escrow's
// committed funds.
func DeriveVaultAddress(programID PublicKey, escrowAddr PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{[]byte(vaultSeed), escrowAddr[:]}, programID)
}

// discriminator computes the 8-byte instruction tag from the method name,
// matching the program's dispatch table.
func discriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:8]
}

// argument encoding helpers: little-endian integers, fixed-width byte
// arrays, one-byte booleans.

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendI64(buf []byte, v int64) []byte {
	return appendU64(buf, uint64(v))
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// InitializeEscrowData encodes the initialize_escrow instruction arguments.
func InitializeEscrowData(id escrow.ID, seller PublicKey, amount uint64, expiry int64, metadataHash [32]byte, aiAgent PublicKey) []byte {
	data := discriminator("initialize_escrow")
	data = append(data, id[:]...)
	data = append(data, seller[:]...)
	data = appendU64(data, amount)
	data = appendI64(data, expiry)
	data = append(data, metadataHash[:]...)
	return append(data, aiAgent[:]...)
}

// DepositFundsData encodes the deposit_funds instruction arguments.
func DepositFundsData() []byte {
	return discriminator("deposit_funds")
}

// SubmitVerificationData encodes the submit_verification instruction
// arguments. The program re-verifies the signature against the escrow's
// stored AI agent key; the client never assumes its own submission is
// trusted.
func SubmitVerificationData(result bool, evidenceHash [32]byte, timestamp int64, signature [64]byte) []byte {
	data := discriminator("submit_verification")
	data = appendBool(data, result)
	data = append(data, evidenceHash[:]...)
	data = appendI64(data, timestamp)
	return append(data, signature[:]...)
}

// ReleaseFundsData encodes the release_funds instruction arguments.
func ReleaseFundsData() []byte {
	return discriminator("release_funds")
}

// RaiseDisputeData encodes the raise_dispute instruction arguments.
func RaiseDisputeData(reasonHash [32]byte) []byte {
	data := discriminator("raise_dispute")
	return append(data, reasonHash[:]...)
}

// RefundBuyerData encodes the refund_buyer instruction arguments.
func RefundBuyerData() []byte {
	return discriminator("refund_buyer")
}
