// Package parse turns fetched bonding-curve transactions into the fields the
// trade pipeline needs: the mint, the curve accounts, and an ordered account
// template suitable for clone-and-inject building.
package parse

import (
	"errors"
	"fmt"

	"github.com/Whit-fire/MHFTSB/internal/solana"
)

// The curve instruction account layout used for positional extraction.
const (
	mintSlot         = 2
	bondingCurveSlot = 3
	assocCurveSlot   = 4

	// A curve buy or create carries at least this many accounts; shorter
	// instructions against the program are unrelated (migrations, admin).
	minCloneAccounts = 12
)

// Token program IDs, matched as strings against instruction accounts.
const (
	tokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

var (
	// ErrFailedTransaction marks candidates whose on-chain execution failed.
	ErrFailedTransaction = errors.New("parse: transaction failed on chain")

	// ErrNoCurveInstruction means no instruction matched the curve program
	// with a full account set.
	ErrNoCurveInstruction = errors.New("parse: no curve instruction found")
)

// CloneAccount is one slot of the clone template. Flags are carried verbatim
// from the observed transaction; the builder mutates only the signer and
// buyer token-account slots.
type CloneAccount struct {
	Pubkey   string
	Signer   bool
	Writable bool
}

// Fields is everything extracted from one candidate transaction.
type Fields struct {
	Signature              string
	Slot                   int64
	Mint                   string
	BondingCurve           string
	AssociatedBondingCurve string
	TokenProgram           string
	Creator                string
	CloneAccounts          []CloneAccount
}

// Extract pulls trade fields out of a jsonParsed transaction. The program
// argument selects which instructions count as curve instructions.
func Extract(tx *solana.Transaction, program string) (*Fields, error) {
	if tx == nil || tx.Message == nil {
		return nil, ErrNoCurveInstruction
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return nil, ErrFailedTransaction
	}

	ix := findCurveInstruction(tx, program)
	if ix == nil {
		return nil, ErrNoCurveInstruction
	}

	flags := make(map[string]solana.AccountKey, len(tx.Message.AccountKeys))
	for _, key := range tx.Message.AccountKeys {
		flags[key.Pubkey] = key
	}

	clone := make([]CloneAccount, len(ix.Accounts))
	for i, pubkey := range ix.Accounts {
		key := flags[pubkey]
		clone[i] = CloneAccount{Pubkey: pubkey, Signer: key.Signer, Writable: key.Writable}
	}

	f := &Fields{
		Signature:              tx.Signature,
		Slot:                   tx.Slot,
		Mint:                   extractMint(tx, ix),
		BondingCurve:           ix.Accounts[bondingCurveSlot],
		AssociatedBondingCurve: ix.Accounts[assocCurveSlot],
		TokenProgram:           detectTokenProgram(ix.Accounts),
		CloneAccounts:          clone,
	}
	if f.Mint == "" {
		return nil, fmt.Errorf("parse: no mint in %s", tx.Signature)
	}
	f.Creator = extractCreator(tx, f.Mint)
	return f, nil
}

// findCurveInstruction returns the first top-level or inner instruction that
// targets the curve program with a full account set.
func findCurveInstruction(tx *solana.Transaction, program string) *solana.Instruction {
	for i := range tx.Message.Instructions {
		ix := &tx.Message.Instructions[i]
		if ix.ProgramID == program && len(ix.Accounts) >= minCloneAccounts {
			return ix
		}
	}
	if tx.Meta == nil {
		return nil
	}
	for i := range tx.Meta.InnerInstructions {
		inner := &tx.Meta.InnerInstructions[i]
		for j := range inner.Instructions {
			ix := &inner.Instructions[j]
			if ix.ProgramID == program && len(ix.Accounts) >= minCloneAccounts {
				return ix
			}
		}
	}
	return nil
}

// extractMint prefers the post-transaction token balances; brand-new mints
// occasionally miss them, so the positional slot is the fallback.
func extractMint(tx *solana.Transaction, ix *solana.Instruction) string {
	if tx.Meta != nil {
		for _, bal := range tx.Meta.PostTokenBalances {
			if bal.Mint != "" {
				return bal.Mint
			}
		}
	}
	return ix.Accounts[mintSlot]
}

// extractCreator returns the first signer that is not the mint itself. On a
// create transaction that is the wallet that launched the token.
func extractCreator(tx *solana.Transaction, mint string) string {
	for _, key := range tx.Message.AccountKeys {
		if key.Signer && key.Pubkey != mint {
			return key.Pubkey
		}
	}
	return ""
}

func detectTokenProgram(accounts []string) string {
	for _, acc := range accounts {
		if acc == token2022ProgramID {
			return token2022ProgramID
		}
	}
	return tokenProgramID
}
