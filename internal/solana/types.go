package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// BlockhashInfo from getLatestBlockhash.
type BlockhashInfo struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
}

// AccountKey is one entry of a jsonParsed message's accountKeys, with its
// signer/writable flags. The flags must survive extraction verbatim; the
// transaction builder relies on them positionally.
type AccountKey struct {
	Pubkey   string `json:"pubkey"`
	Signer   bool   `json:"signer"`
	Writable bool   `json:"writable"`
}

// Instruction is one top-level or inner instruction of a jsonParsed
// transaction. Accounts are pubkeys, in instruction order.
type Instruction struct {
	ProgramID string   `json:"programId"`
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"` // base58 raw payload
}

// InnerInstructions groups inner instructions by their outer index.
type InnerInstructions struct {
	Index        int           `json:"index"`
	Instructions []Instruction `json:"instructions"`
}

// TokenBalance is a post-transaction token balance entry.
type TokenBalance struct {
	Mint  string `json:"mint"`
	Owner string `json:"owner"`
}

// Transaction is a jsonParsed transaction as returned by getTransaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime *int64
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err               interface{}
	LogMessages       []string
	InnerInstructions []InnerInstructions
	PostTokenBalances []TokenBalance
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []AccountKey
	Instructions []Instruction
}
