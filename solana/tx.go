package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// AccountMeta declares how an instruction touches an account.
type AccountMeta struct {
	Pubkey     PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation inside a transaction.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// appendCompactU16 writes the shortvec length prefix used throughout the
// wire format.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// BuildTransaction assembles, signs and serializes a single-signer legacy
// transaction. The fee payer is the signing key's address and always heads
// the account list.
func BuildTransaction(signer ed25519.PrivateKey, recentBlockhash [32]byte, instructions []Instruction) (string, error) {
	if len(instructions) == 0 {
		return "", fmt.Errorf("no instructions")
	}

	var feePayer PublicKey
	copy(feePayer[:], signer.Public().(ed25519.PublicKey))

	keys, header := collectAccounts(feePayer, instructions)
	index := make(map[PublicKey]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}

	// message: header, account keys, blockhash, instructions
	msg := []byte{header.numRequiredSignatures, header.numReadonlySigned, header.numReadonlyUnsigned}
	msg = appendCompactU16(msg, len(keys))
	for _, k := range keys {
		msg = append(msg, k[:]...)
	}
	msg = append(msg, recentBlockhash[:]...)
	msg = appendCompactU16(msg, len(instructions))
	for _, ins := range instructions {
		msg = append(msg, byte(index[ins.ProgramID]))
		msg = appendCompactU16(msg, len(ins.Accounts))
		for _, meta := range ins.Accounts {
			msg = append(msg, byte(index[meta.Pubkey]))
		}
		msg = appendCompactU16(msg, len(ins.Data))
		msg = append(msg, ins.Data...)
	}

	signature := ed25519.Sign(signer, msg)

	tx := appendCompactU16(nil, 1)
	tx = append(tx, signature...)
	tx = append(tx, msg...)
	return base64.StdEncoding.EncodeToString(tx), nil
}

type messageHeader struct {
	numRequiredSignatures byte
	numReadonlySigned     byte
	numReadonlyUnsigned   byte
}

// collectAccounts orders accounts the way the runtime requires: writable
// signers, readonly signers, writable non-signers, readonly non-signers,
// with program ids appended as readonly non-signers.
func collectAccounts(feePayer PublicKey, instructions []Instruction) ([]PublicKey, messageHeader) {
	type flags struct {
		signer   bool
		writable bool
	}
	merged := map[PublicKey]*flags{
		feePayer: {signer: true, writable: true},
	}
	order := []PublicKey{feePayer}

	touch := func(pk PublicKey, signer, writable bool) {
		f, ok := merged[pk]
		if !ok {
			f = &flags{}
			merged[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}

	for _, ins := range instructions {
		for _, meta := range ins.Accounts {
			touch(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		touch(ins.ProgramID, false, false)
	}

	var writableSigners, readonlySigners, writableOthers, readonlyOthers []PublicKey
	for _, pk := range order {
		f := merged[pk]
		switch {
		case f.signer && f.writable:
			writableSigners = append(writableSigners, pk)
		case f.signer:
			readonlySigners = append(readonlySigners, pk)
		case f.writable:
			writableOthers = append(writableOthers, pk)
		default:
			readonlyOthers = append(readonlyOthers, pk)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writableOthers...)
	keys = append(keys, readonlyOthers...)

	return keys, messageHeader{
		numRequiredSignatures: byte(len(writableSigners) + len(readonlySigners)),
		numReadonlySigned:     byte(len(readonlySigners)),
		numReadonlyUnsigned:   byte(len(readonlyOthers)),
	}
}
