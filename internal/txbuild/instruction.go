package txbuild

import "encoding/binary"

// AccountMeta is one positional account reference of an instruction. The
// signer/writable flags must be preserved verbatim when cloning.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a program invocation with its ordered account list.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Anchor discriminators of the curve program's buy and sell instructions.
var (
	buyDiscriminator  = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	sellDiscriminator = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// BuyInstructionData encodes the buy payload:
// discriminator(8) + token_amount(8) + max_sol_cost(8) + track_volume(1).
func BuyInstructionData(tokenAmount, maxSolCost uint64) []byte {
	data := make([]byte, 0, 25)
	data = append(data, buyDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, tokenAmount)
	data = binary.LittleEndian.AppendUint64(data, maxSolCost)
	return append(data, 0)
}

// SellInstructionData encodes the sell payload:
// discriminator(8) + token_amount(8) + min_sol_output(8) + track_volume(1).
func SellInstructionData(tokenAmount, minSolOutput uint64) []byte {
	data := make([]byte, 0, 25)
	data = append(data, sellDiscriminator...)
	data = binary.LittleEndian.AppendUint64(data, tokenAmount)
	data = binary.LittleEndian.AppendUint64(data, minSolOutput)
	return append(data, 0)
}

// ComputeUnitLimit builds a compute-budget SetComputeUnitLimit instruction.
func ComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = 2
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{ProgramID: ComputeBudgetProgram, Data: data}
}

// ComputeUnitPrice builds a compute-budget SetComputeUnitPrice instruction.
func ComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = 3
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{ProgramID: ComputeBudgetProgram, Data: data}
}

// SystemTransfer builds a system-program lamport transfer, used for the
// optional tip appended to fee-boosted buys.
func SystemTransfer(from, to Pubkey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:], 2) // Transfer
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return Instruction{
		ProgramID: SystemProgram,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}

// CreateATAIdempotent builds an associated-token-account create instruction
// that succeeds whether or not the account already exists.
func CreateATAIdempotent(payer, owner, mint, tokenProgram Pubkey) (Instruction, error) {
	ata, err := AssociatedTokenAddress(owner, mint, tokenProgram)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: AssociatedTokenProgram,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: ata, IsWritable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: SystemProgram},
			{Pubkey: tokenProgram},
		},
		Data: []byte{1}, // CreateIdempotent
	}, nil
}
