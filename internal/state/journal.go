/*

Persistent Recorder. Structured swap, liquidity and price events land in
dedicated tables; everything else is journaled as JSONB. Record never
fails the emitting operation: persistence errors are logged and the
event is dropped.

*/

package state

import (
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/volmexfinance/volmex-amm/internal/logger"
	"github.com/volmexfinance/volmex-amm/internal/types"
)

var journalLogger = logger.GetForComponent("journal")

// Journal writes events to the postgres event journal. Requires InitDB
// and EnsureSchema to have run.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(event any) {
	var err error
	switch e := event.(type) {
	case types.BatchPriceUpdated:
		err = j.recordBatchPrices(e)
	case types.Swapped:
		err = j.recordSwap(e)
	case types.Joined:
		err = j.recordLiquidity(e.Pool, "join", e.Shares.String(), e.AmountsIn, e.Recipient)
	case types.Exited:
		err = j.recordLiquidity(e.Pool, "exit", e.Shares.String(), e.AmountsOut, e.Recipient)
	default:
		err = j.recordGeneric(event)
	}
	if err != nil {
		journalLogger.Error().Err(err).Type("event", event).Msg("Failed to journal event")
	}
}

func (j *Journal) recordBatchPrices(e types.BatchPriceUpdated) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	for i, id := range e.Indexes {
		proof := ""
		if i < len(e.ProofHashes) {
			proof = e.ProofHashes[i]
		}
		_, err := DB.Exec(
			`INSERT INTO price_observations (index_id, price, proof_hash, observed_at) VALUES ($1, $2, $3, $4)`,
			uint64(id), e.Prices[i].String(), proof, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert price observation: %w", err)
		}
	}
	return nil
}

func (j *Journal) recordSwap(e types.Swapped) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := DB.Exec(
		`INSERT INTO swap_events (pool_id, token_in, token_out, amount_in, amount_out, fee, admin_fee, recipient)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uint64(e.Pool), e.TokenIn, e.TokenOut,
		e.AmountIn.String(), e.AmountOut.String(),
		e.FeeAmountIn.String(), e.AdminFeeAmount.String(),
		string(e.Recipient),
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap event: %w", err)
	}
	return nil
}

func (j *Journal) recordLiquidity(pool types.PoolID, kind, shares string, amounts []sdkmath.Int, recipient types.Account) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	primary, complement := "0", "0"
	if len(amounts) == 2 {
		primary, complement = amounts[0].String(), amounts[1].String()
	}
	_, err := DB.Exec(
		`INSERT INTO liquidity_events (pool_id, kind, shares, primary_amount, complement_amount, recipient)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uint64(pool), kind, shares, primary, complement, string(recipient),
	)
	if err != nil {
		return fmt.Errorf("failed to insert liquidity event: %w", err)
	}
	return nil
}

func (j *Journal) recordGeneric(event any) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = DB.Exec(
		`INSERT INTO system_events (kind, payload) VALUES ($1, $2)`,
		fmt.Sprintf("%T", event), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert system event: %w", err)
	}
	return nil
}
