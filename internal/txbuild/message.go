package txbuild

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Message is a compiled legacy transaction message.
type Message struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
	AccountKeys                 []Pubkey
	RecentBlockhash             [32]byte
	Instructions                []compiledInstruction
}

type compiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndexes []uint8
	Data           []byte
}

type keyMeta struct {
	key      Pubkey
	signer   bool
	writable bool
}

// NewMessage compiles instructions into a legacy message. The fee payer is
// placed first; remaining accounts are ordered writable-signers,
// readonly-signers, writable-non-signers, readonly-non-signers, with
// program IDs as readonly non-signers.
func NewMessage(payer Pubkey, instructions []Instruction, recentBlockhash string) (*Message, error) {
	blockhashRaw, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhashRaw) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}

	// Merge flags across all references to the same key.
	metas := []*keyMeta{{key: payer, signer: true, writable: true}}
	index := map[Pubkey]*keyMeta{payer: metas[0]}
	upsert := func(key Pubkey, signer, writable bool) {
		if m, ok := index[key]; ok {
			m.signer = m.signer || signer
			m.writable = m.writable || writable
			return
		}
		m := &keyMeta{key: key, signer: signer, writable: writable}
		index[key] = m
		metas = append(metas, m)
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			upsert(acc.Pubkey, acc.IsSigner, acc.IsWritable)
		}
		upsert(ix.ProgramID, false, false)
	}

	// Stable classification keeps clone-template ordering within each class.
	var writableSigners, readonlySigners, writableOthers, readonlyOthers []*keyMeta
	for _, m := range metas {
		switch {
		case m.signer && m.writable:
			writableSigners = append(writableSigners, m)
		case m.signer:
			readonlySigners = append(readonlySigners, m)
		case m.writable:
			writableOthers = append(writableOthers, m)
		default:
			readonlyOthers = append(readonlyOthers, m)
		}
	}

	ordered := append(append(append(writableSigners, readonlySigners...), writableOthers...), readonlyOthers...)
	keys := make([]Pubkey, len(ordered))
	keyIndex := make(map[Pubkey]uint8, len(ordered))
	for i, m := range ordered {
		if i > 255 {
			return nil, errors.New("txbuild: too many accounts")
		}
		keys[i] = m.key
		keyIndex[m.key] = uint8(i)
	}

	msg := &Message{
		NumRequiredSignatures:       uint8(len(writableSigners) + len(readonlySigners)),
		NumReadonlySignedAccounts:   uint8(len(readonlySigners)),
		NumReadonlyUnsignedAccounts: uint8(len(readonlyOthers)),
		AccountKeys:                 keys,
	}
	copy(msg.RecentBlockhash[:], blockhashRaw)

	for _, ix := range instructions {
		ci := compiledInstruction{
			ProgramIDIndex: keyIndex[ix.ProgramID],
			Data:           ix.Data,
		}
		for _, acc := range ix.Accounts {
			ci.AccountIndexes = append(ci.AccountIndexes, keyIndex[acc.Pubkey])
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Serialize encodes the message in wire format.
func (m *Message) Serialize() []byte {
	out := []byte{m.NumRequiredSignatures, m.NumReadonlySignedAccounts, m.NumReadonlyUnsignedAccounts}
	out = appendCompactU16(out, len(m.AccountKeys))
	for _, key := range m.AccountKeys {
		out = append(out, key[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = appendCompactU16(out, len(m.Instructions))
	for _, ix := range m.Instructions {
		out = append(out, ix.ProgramIDIndex)
		out = appendCompactU16(out, len(ix.AccountIndexes))
		out = append(out, ix.AccountIndexes...)
		out = appendCompactU16(out, len(ix.Data))
		out = append(out, ix.Data...)
	}
	return out
}

// SignedTransaction serializes the message and signs it with the given keys,
// which must cover the first NumRequiredSignatures account slots in order.
func (m *Message) SignedTransaction(signers ...*Keypair) ([]byte, error) {
	if len(signers) != int(m.NumRequiredSignatures) {
		return nil, fmt.Errorf("need %d signers, got %d", m.NumRequiredSignatures, len(signers))
	}
	serialized := m.Serialize()

	out := appendCompactU16(nil, len(signers))
	for i, signer := range signers {
		if m.AccountKeys[i] != signer.Pubkey() {
			return nil, fmt.Errorf("signer %d does not match account slot", i)
		}
		out = append(out, ed25519.Sign(signer.priv, serialized)...)
	}
	return append(out, serialized...), nil
}

// appendCompactU16 appends a compact-u16 (shortvec) length prefix.
func appendCompactU16(out []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(out, byte(n))
		}
		out = append(out, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// Keypair is an ed25519 signing key with its cached public key.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  Pubkey
}

// KeypairFromBytes loads a keypair from a 64-byte private key or a 32-byte
// seed.
func KeypairFromBytes(raw []byte) (*Keypair, error) {
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("keypair must be 32 or 64 bytes, got %d", len(raw))
	}

	var pub Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{priv: priv, pub: pub}, nil
}

// KeypairFromBase58 loads a keypair from a base58-encoded key.
func KeypairFromBase58(s string) (*Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode keypair: %w", err)
	}
	return KeypairFromBytes(raw)
}

// Pubkey returns the public key.
func (k *Keypair) Pubkey() Pubkey {
	return k.pub
}
