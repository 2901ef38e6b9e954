package state

import (
	"context"
	"database/sql"
	"fmt"
)

// MigratePostgres applies the ledger schema. Every statement is idempotent,
// so rerunning against an initialized database is safe.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pending_proofs (
			nonce BIGINT PRIMARY KEY,
			user_principal TEXT NOT NULL,
			method TEXT NOT NULL,
			credential_hash BYTEA NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_proofs_user ON pending_proofs (user_principal)`,
		`CREATE TABLE IF NOT EXISTS wrapped_identities (
			user_principal TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			token_id BIGINT NOT NULL,
			active BOOLEAN NOT NULL,
			wrapped_at BIGINT NOT NULL,
			revoked_at BIGINT,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token_id BIGINT PRIMARY KEY,
			owner_principal TEXT NOT NULL,
			auth_method TEXT NOT NULL,
			extra TEXT NOT NULL DEFAULT '',
			status BOOLEAN NOT NULL,
			minted_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_owner ON tokens (owner_principal)`,
		`CREATE TABLE IF NOT EXISTS owner_counts (
			owner_principal TEXT PRIMARY KEY,
			live_tokens BIGINT NOT NULL CHECK (live_tokens >= 0)
		)`,
		// Single-row table: the configuration scalars plus both sequence
		// counters, so counter bumps commit with the unit that used them.
		`CREATE TABLE IF NOT EXISTS ledger_config (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			contract_owner TEXT NOT NULL,
			oracle TEXT,
			auth_wrapper TEXT,
			max_tokens BIGINT NOT NULL,
			mint_fee BIGINT NOT NULL,
			last_token_id BIGINT NOT NULL,
			nonce_counter BIGINT NOT NULL
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("ledger migration %d failed: %w", i, err)
		}
	}
	return nil
}

// SeedGenesis writes the genesis scalars into an empty ledger. The contract
// owner is fixed at genesis, so if the config row already exists the call
// changes nothing.
func SeedGenesis(ctx context.Context, db *sql.DB, g Genesis) error {
	query := `
		INSERT INTO ledger_config (id, contract_owner, max_tokens, mint_fee, last_token_id, nonce_counter)
		VALUES (1, $1, $2, $3, 0, 0)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.ExecContext(ctx, query, string(g.ContractOwner), int64(g.MaxTokens), int64(g.MintFee))
	if err != nil {
		return fmt.Errorf("seed genesis: %w", err)
	}
	return nil
}
