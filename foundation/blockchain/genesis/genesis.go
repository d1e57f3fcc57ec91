// Package genesis maintains access to the chain parameters. The parameters
// are read from a genesis file when one exists, otherwise the defaults
// are used.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Default parameters of the chain.
const (
	DefaultDifficulty    = 16
	DefaultMiningReward  = 100
	DefaultMinTxPerBlock = 1
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time `json:"date"`
	Difficulty    uint8     `json:"difficulty"`       // How difficult it needs to be to solve the work problem.
	MiningReward  uint64    `json:"mining_reward"`    // Reward for mining a block.
	MinTxPerBlock uint16    `json:"min_tx_per_block"` // Pending transactions needed before a block is mined.
}

// Default returns the parameters used when no genesis file exists.
func Default() Genesis {
	return Genesis{
		Date:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:    DefaultDifficulty,
		MiningReward:  DefaultMiningReward,
		MinTxPerBlock: DefaultMinTxPerBlock,
	}
}

// =============================================================================

// Load opens and consumes the genesis file. If the file does not exist the
// default parameters are returned.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decode genesis[%s]: %w", path, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the parameters are usable.
func (g Genesis) Validate() error {
	if g.Difficulty == 0 {
		return errors.New("genesis difficulty must be between 1 and 255")
	}

	if g.MinTxPerBlock == 0 {
		return errors.New("genesis min_tx_per_block must be at least 1")
	}

	return nil
}
