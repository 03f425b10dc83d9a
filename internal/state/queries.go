package state

import (
	"fmt"
	"time"
)

// SwapRow is one journaled swap, amounts as decimal strings.
type SwapRow struct {
	PoolID     uint64    `json:"pool_id"`
	TokenIn    string    `json:"token_in"`
	TokenOut   string    `json:"token_out"`
	AmountIn   string    `json:"amount_in"`
	AmountOut  string    `json:"amount_out"`
	Fee        string    `json:"fee"`
	AdminFee   string    `json:"admin_fee"`
	Recipient  string    `json:"recipient"`
	RecordedAt time.Time `json:"recorded_at"`
}

// GetRecentSwaps returns the most recent journaled swaps, newest first.
func GetRecentSwaps(limit int) ([]SwapRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(
		`SELECT pool_id, token_in, token_out, amount_in, amount_out, fee, admin_fee, recipient, recorded_at
		 FROM swap_events ORDER BY recorded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query swap events: %w", err)
	}
	defer rows.Close()

	var out []SwapRow
	for rows.Next() {
		var r SwapRow
		if err := rows.Scan(&r.PoolID, &r.TokenIn, &r.TokenOut, &r.AmountIn, &r.AmountOut, &r.Fee, &r.AdminFee, &r.Recipient, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ObservationRow is one journaled price observation.
type ObservationRow struct {
	IndexID    uint64    `json:"index_id"`
	Price      string    `json:"price"`
	ProofHash  string    `json:"proof_hash"`
	ObservedAt time.Time `json:"observed_at"`
}

// GetRecentObservations returns the most recent journaled price
// observations for one index, newest first.
func GetRecentObservations(indexID uint64, limit int) ([]ObservationRow, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	rows, err := DB.Query(
		`SELECT index_id, price, proof_hash, observed_at
		 FROM price_observations WHERE index_id = $1 ORDER BY observed_at DESC LIMIT $2`, indexID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price observations: %w", err)
	}
	defer rows.Close()

	var out []ObservationRow
	for rows.Next() {
		var r ObservationRow
		if err := rows.Scan(&r.IndexID, &r.Price, &r.ProofHash, &r.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
