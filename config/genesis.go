package config

// Protocol constants. These are consensus-critical and MUST match across
// every node; they are compiled in rather than loaded from a genesis file,
// since the genesis block itself is a single fixed constant.
const (
	// BlockGenerationInterval is the target number of seconds between blocks.
	BlockGenerationInterval = 10

	// DifficultyAdjustmentInterval is the number of blocks between retargets.
	DifficultyAdjustmentInterval = 10

	// GenesisTimestamp is the fixed Unix timestamp of the genesis block.
	GenesisTimestamp uint64 = 1528359030
)

// Block and transaction size limits. Not consensus-defined by the base
// protocol, but enforced uniformly by every node as DoS hardening.
const (
	MaxBlockSize = 2_000_000 // 2 MB max block size (signing bytes)
	MaxBlockTxs  = 500       // Max transactions per block (including coinbase)
	MaxTxInputs  = 2_500     // Max inputs per transaction
	MaxTxOutputs = 2_500     // Max outputs per transaction
)
