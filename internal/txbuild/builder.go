package txbuild

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mr-tron/base58"

	"github.com/Whit-fire/MHFTSB/internal/parse"
	"github.com/Whit-fire/MHFTSB/internal/rpcpool"
)

// Clone template slots mutated during injection. Everything else is carried
// verbatim from the observed transaction.
const (
	buyerTokenAccountSlot = 5
	signerSlot            = 6
)

// Default compute budget attached to every built transaction.
const (
	DefaultComputeUnitLimit = 200_000
	DefaultComputeUnitPrice = 500_000
)

// Curve-init polling policy: fast at first, easing off, bounded overall.
const (
	curveInitPollStart = 250 * time.Millisecond
	curveInitPollStep  = 50 * time.Millisecond
	curveInitPollMax   = 400 * time.Millisecond
	curveInitTimeout   = 8 * time.Second
)

var (
	// ErrCloneTemplateShort means the extracted account list does not cover
	// the slots that must be mutated.
	ErrCloneTemplateShort = errors.New("txbuild: clone template too short")

	// ErrCurveNotInitialized means the bonding curve account never appeared
	// under the curve program within the polling window.
	ErrCurveNotInitialized = errors.New("txbuild: curve not initialized in time")
)

// Quoter converts a lamport spend into a token amount for the buy
// instruction. The default is a flat heuristic; a curve-state reader can be
// swapped in without touching the builder.
type Quoter interface {
	TokensForLamports(lamports uint64) uint64
}

// HeuristicQuoter approximates early-curve pricing with a flat multiplier.
type HeuristicQuoter struct {
	// TokensPerLamport defaults to 30 when zero.
	TokensPerLamport uint64
}

func (q HeuristicQuoter) TokensForLamports(lamports uint64) uint64 {
	mult := q.TokensPerLamport
	if mult == 0 {
		mult = 30
	}
	return lamports * mult
}

// Builder assembles buy and sell transactions for a single wallet.
type Builder struct {
	wallet   *Keypair
	registry *rpcpool.Registry
	quoter   Quoter
	logger   *log.Logger

	computeUnitLimit uint32
	computeUnitPrice uint64
	tipAccount       Pubkey
	tipLamports      uint64
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithComputeBudget overrides the default compute unit limit and price.
func WithComputeBudget(limit uint32, price uint64) BuilderOption {
	return func(b *Builder) {
		b.computeUnitLimit = limit
		b.computeUnitPrice = price
	}
}

// WithTip appends a lamport transfer to every buy, for fee-boosted inclusion.
func WithTip(account Pubkey, lamports uint64) BuilderOption {
	return func(b *Builder) {
		b.tipAccount = account
		b.tipLamports = lamports
	}
}

// WithQuoter replaces the token-amount heuristic.
func WithQuoter(q Quoter) BuilderOption {
	return func(b *Builder) {
		b.quoter = q
	}
}

// NewBuilder creates a transaction builder signing as wallet.
func NewBuilder(wallet *Keypair, registry *rpcpool.Registry, logger *log.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	b := &Builder{
		wallet:           wallet,
		registry:         registry,
		quoter:           HeuristicQuoter{},
		logger:           logger,
		computeUnitLimit: DefaultComputeUnitLimit,
		computeUnitPrice: DefaultComputeUnitPrice,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Wallet returns the signing wallet's public key.
func (b *Builder) Wallet() Pubkey {
	return b.wallet.Pubkey()
}

// Built is a signed, serialized transaction ready for submission.
type Built struct {
	Base64      string
	TokenAmount uint64
	Blockhash   string
}

// CloneAndInjectBuy builds a buy by cloning the observed account list and
// mutating exactly two slots: the signer and the buyer's token account. The
// maxCostLamports cap is the slippage bound baked into the instruction.
func (b *Builder) CloneAndInjectBuy(ctx context.Context, f *parse.Fields, lamports, maxCostLamports uint64) (*Built, error) {
	metas, mint, tokenProgram, err := b.injectedClone(f)
	if err != nil {
		return nil, err
	}

	ataIx, err := CreateATAIdempotent(b.wallet.Pubkey(), b.wallet.Pubkey(), mint, tokenProgram)
	if err != nil {
		return nil, fmt.Errorf("derive buyer token account: %w", err)
	}

	tokenAmount := b.quoter.TokensForLamports(lamports)
	instructions := []Instruction{
		ComputeUnitLimit(b.computeUnitLimit),
		ComputeUnitPrice(b.computeUnitPrice),
		ataIx,
		{ProgramID: CurveProgram, Accounts: metas, Data: BuyInstructionData(tokenAmount, maxCostLamports)},
	}
	if b.tipLamports > 0 && !b.tipAccount.IsZero() {
		instructions = append(instructions, SystemTransfer(b.wallet.Pubkey(), b.tipAccount, b.tipLamports))
	}

	built, err := b.sign(ctx, instructions)
	if err != nil {
		return nil, err
	}
	built.TokenAmount = tokenAmount
	return built, nil
}

// BuildSell reuses the clone template held on the position to exit. The
// minSolOutput floor is zero for forced exits.
func (b *Builder) BuildSell(ctx context.Context, f *parse.Fields, tokenAmount, minSolOutput uint64) (*Built, error) {
	metas, _, _, err := b.injectedClone(f)
	if err != nil {
		return nil, err
	}

	instructions := []Instruction{
		ComputeUnitLimit(b.computeUnitLimit),
		ComputeUnitPrice(b.computeUnitPrice),
		{ProgramID: CurveProgram, Accounts: metas, Data: SellInstructionData(tokenAmount, minSolOutput)},
	}
	return b.sign(ctx, instructions)
}

// injectedClone converts the extracted template to account metas with the
// two injection slots rewritten for this wallet.
func (b *Builder) injectedClone(f *parse.Fields) ([]AccountMeta, Pubkey, Pubkey, error) {
	if len(f.CloneAccounts) <= signerSlot {
		return nil, Pubkey{}, Pubkey{}, ErrCloneTemplateShort
	}

	metas := make([]AccountMeta, len(f.CloneAccounts))
	for i, acc := range f.CloneAccounts {
		pk, err := PubkeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, Pubkey{}, Pubkey{}, fmt.Errorf("clone slot %d: %w", i, err)
		}
		metas[i] = AccountMeta{Pubkey: pk, IsSigner: acc.Signer, IsWritable: acc.Writable}
	}

	mint, err := PubkeyFromBase58(f.Mint)
	if err != nil {
		return nil, Pubkey{}, Pubkey{}, fmt.Errorf("mint: %w", err)
	}
	tokenProgram := TokenProgramFor(f.TokenProgram)

	buyerATA, err := AssociatedTokenAddress(b.wallet.Pubkey(), mint, tokenProgram)
	if err != nil {
		return nil, Pubkey{}, Pubkey{}, fmt.Errorf("buyer token account: %w", err)
	}

	metas[signerSlot] = AccountMeta{Pubkey: b.wallet.Pubkey(), IsSigner: true, IsWritable: true}
	metas[buyerTokenAccountSlot] = AccountMeta{Pubkey: buyerATA, IsWritable: true}
	return metas, mint, tokenProgram, nil
}

// sign fetches a fresh blockhash, compiles, and signs.
func (b *Builder) sign(ctx context.Context, instructions []Instruction) (*Built, error) {
	bhc, err := b.registry.FreshBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}

	msg, err := NewMessage(b.wallet.Pubkey(), instructions, bhc.Blockhash)
	if err != nil {
		return nil, err
	}
	raw, err := msg.SignedTransaction(b.wallet)
	if err != nil {
		return nil, err
	}
	return &Built{
		Base64:    base64.StdEncoding.EncodeToString(raw),
		Blockhash: bhc.Blockhash,
	}, nil
}

// WaitForCurveInit polls until the bonding curve account exists and is owned
// by the curve program. New tokens usually initialize within a second; the
// hard timeout drops candidates that never do.
func (b *Builder) WaitForCurveInit(ctx context.Context, bondingCurve string) error {
	deadline := time.Now().Add(curveInitTimeout)
	delay := curveInitPollStart

	for time.Now().Before(deadline) {
		ep := b.registry.BestFetchEndpoint()
		if ep != nil {
			info, err := ep.Client.GetAccountInfo(ctx, bondingCurve)
			if err == nil && info.Owner == CurveProgram.String() {
				return nil
			}
			if err != nil {
				b.registry.Penalize(ep.URL, err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < curveInitPollMax {
			delay += curveInitPollStep
		}
	}
	return ErrCurveNotInitialized
}

// FetchCurveCreator reads the creator pubkey out of the bonding curve
// account state, as a fallback when the create transaction's signer is not
// available.
func (b *Builder) FetchCurveCreator(ctx context.Context, bondingCurve string) (Pubkey, error) {
	ep := b.registry.BestFetchEndpoint()
	if ep == nil {
		return Pubkey{}, errors.New("txbuild: no endpoint configured")
	}
	info, err := ep.Client.GetAccountInfo(ctx, bondingCurve)
	if err != nil {
		b.registry.Penalize(ep.URL, err)
		return Pubkey{}, fmt.Errorf("fetch curve account: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(info.Data)
	if err != nil {
		return Pubkey{}, fmt.Errorf("decode curve account data: %w", err)
	}
	// discriminator(8) + reserves/supply u64s(40) + complete(1) + creator(32)
	if len(raw) < 81 {
		return Pubkey{}, fmt.Errorf("curve account data too short: %d bytes", len(raw))
	}
	var creator Pubkey
	copy(creator[:], raw[49:81])
	return creator, nil
}

// ParseSignature base58-decodes a transaction signature, validating length.
func ParseSignature(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 64 {
		return nil, fmt.Errorf("txbuild: invalid signature %q", s)
	}
	return raw, nil
}
