package params

const (
	DefaultFeeReductionDenominator = 20       // Bounds the reduction amount the various fees may have.
	DefaultBlockGasLimitMultiplier = 100      // Bounds the maximum gas limit a block may have.
	DefaultMinBlockGasLimit        = 30000000 // Minimum gas limit for a block.

	// DefaultPruningHistory is the default number of eras the journal
	// retains behind the canonical head.
	DefaultPruningHistory = 64
)
