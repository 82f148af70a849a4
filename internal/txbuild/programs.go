package txbuild

// Well-known program and account addresses for the bonding-curve program.
var (
	CurveProgram           = MustPubkey("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	CurveGlobal            = MustPubkey("4wTV1YmiEkRvAtNtsSGPtUrqRYQMe5SKy2uB4Jjaxnjf")
	CurveFeeRecipient      = MustPubkey("62qc2CNXwrYqQScmEdiZFFAnJR262PxWEuNQtxfafNgV")
	CurveEventAuth         = MustPubkey("Ce6TQqeHC9p8KetsN6JsjHK7UTZk7nasjjnr7XxXp9F1")
	FeeProgram             = MustPubkey("pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ")
	TokenProgram           = MustPubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022Program       = MustPubkey("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	AssociatedTokenProgram = MustPubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SystemProgram          = MustPubkey("11111111111111111111111111111111")
	ComputeBudgetProgram   = MustPubkey("ComputeBudget111111111111111111111111111111")
)

// Static PDAs, derived once from fixed seeds.
var (
	GlobalVolumeAccumulator = mustFindPDA([][]byte{[]byte("global_volume_accumulator")}, CurveProgram)
	FeeConfig               = mustFindPDA([][]byte{[]byte("fee_config"), CurveProgram[:]}, FeeProgram)
)

func mustFindPDA(seeds [][]byte, program Pubkey) Pubkey {
	p, _, err := FindProgramAddress(seeds, program)
	if err != nil {
		panic(err)
	}
	return p
}

// CreatorVault derives the creator's fee vault PDA.
func CreatorVault(creator Pubkey) (Pubkey, error) {
	p, _, err := FindProgramAddress([][]byte{[]byte("creator-vault"), creator[:]}, CurveProgram)
	return p, err
}

// UserVolumeAccumulator derives the per-user volume accumulator PDA.
func UserVolumeAccumulator(user Pubkey) (Pubkey, error) {
	p, _, err := FindProgramAddress([][]byte{[]byte("user_volume_accumulator"), user[:]}, CurveProgram)
	return p, err
}

// TokenProgramFor maps a base58 token-program string to the matching variant,
// defaulting to token-2022.
func TokenProgramFor(s string) Pubkey {
	if s == TokenProgram.String() {
		return TokenProgram
	}
	return Token2022Program
}
