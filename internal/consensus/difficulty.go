// Package consensus computes the proof-of-work difficulty a chain expects
// of its next block. It holds no mutable state: every call is a pure
// function of the chain history handed to it.
package consensus

import (
	"github.com/kgxledger/kgxledger/config"
	"github.com/kgxledger/kgxledger/pkg/block"
)

// TimestampAt retrieves the timestamp of the block at the given index.
// Nothing in this repository implements it (internal/chain.Chain has no
// BlockTimestamp method), and NextDifficulty does not use it: it reads
// timestamps from the block slice it is given.
type TimestampAt interface {
	BlockTimestamp(index uint64) (uint64, bool)
}

// NextDifficulty computes the difficulty required of the block that would
// follow tip, given the full chain (used to find the retarget reference
// block). blocks must be ordered by index with blocks[0] the genesis block
// and blocks[len(blocks)-1] the tip.
func NextDifficulty(blocks []*block.Block) uint64 {
	n := len(blocks) - 1 // tip index
	tip := blocks[n]

	if n > 0 && n%config.DifficultyAdjustmentInterval == 0 {
		return adjustedDifficulty(blocks, n)
	}
	return tip.Difficulty
}

// adjustedDifficulty applies the threshold retarget rule against the
// reference block DIFFICULTY_ADJUSTMENT_INTERVAL blocks behind the tip,
// clamped to genesis if the chain is shorter than that.
func adjustedDifficulty(blocks []*block.Block, tipIndex int) uint64 {
	tip := blocks[tipIndex]

	refIndex := tipIndex - config.DifficultyAdjustmentInterval
	if refIndex < 0 {
		refIndex = 0
	}
	ref := blocks[refIndex]

	expected := int64(config.BlockGenerationInterval) * int64(config.DifficultyAdjustmentInterval)
	actual := int64(tip.Timestamp) - int64(ref.Timestamp)

	switch {
	case actual < expected/2:
		return ref.Difficulty + 1
	case actual > expected*2:
		if ref.Difficulty == 0 {
			return 0
		}
		return ref.Difficulty - 1
	default:
		return ref.Difficulty
	}
}
