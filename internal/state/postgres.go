package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	tokenmodels "soulbind/internal/token/models"
	wrapmodels "soulbind/internal/wrap/models"
	"soulbind/pkg/domain"
	"soulbind/pkg/platform/sentinel"
)

// ledgerLockKey is the advisory lock every unit takes before touching the
// ledger. The nonce and token sequences require a total order across
// units; one lock serializes writers without blocking plain reads.
const ledgerLockKey = 0x50756c53 // "SluP"

// PostgresStore persists the ledger in PostgreSQL. Reads outside a unit go
// straight to the pool; RunInTx wraps fn in a transaction holding the
// ledger advisory lock, so a failed unit rolls back completely.
type PostgresStore struct {
	db    *sql.DB
	reads pgQueries
}

// NewPostgres constructs a PostgreSQL-backed ledger store. The schema must
// already be migrated and seeded; see MigratePostgres and SeedGenesis.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, reads: pgQueries{q: db}}
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(v View) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger unit: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(ledgerLockKey)); err != nil {
		return fmt.Errorf("acquire ledger lock: %w", err)
	}

	if err := fn(&pgQueries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger unit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProof(ctx context.Context, nonce domain.Nonce) (*wrapmodels.PendingProof, error) {
	return s.reads.GetProof(ctx, nonce)
}

func (s *PostgresStore) GetIdentity(ctx context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, error) {
	return s.reads.GetIdentity(ctx, user)
}

func (s *PostgresStore) TokenOwner(ctx context.Context, id domain.TokenID) (domain.Principal, error) {
	return s.reads.TokenOwner(ctx, id)
}

func (s *PostgresStore) TokenMetadata(ctx context.Context, id domain.TokenID) (*tokenmodels.Metadata, error) {
	return s.reads.TokenMetadata(ctx, id)
}

func (s *PostgresStore) OwnerCount(ctx context.Context, owner domain.Principal) (uint64, error) {
	return s.reads.OwnerCount(ctx, owner)
}

func (s *PostgresStore) LastTokenID(ctx context.Context) (domain.TokenID, error) {
	return s.reads.LastTokenID(ctx)
}

func (s *PostgresStore) ContractOwner(ctx context.Context) (domain.Principal, error) {
	return s.reads.ContractOwner(ctx)
}

func (s *PostgresStore) Oracle(ctx context.Context) (domain.Principal, error) {
	return s.reads.Oracle(ctx)
}

func (s *PostgresStore) AuthWrapper(ctx context.Context) (domain.Principal, error) {
	return s.reads.AuthWrapper(ctx)
}

func (s *PostgresStore) MaxTokens(ctx context.Context) (uint64, error) {
	return s.reads.MaxTokens(ctx)
}

func (s *PostgresStore) MintFee(ctx context.Context) (uint64, error) {
	return s.reads.MintFee(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type pgQueries struct {
	q querier
}

func (p *pgQueries) GetProof(ctx context.Context, nonce domain.Nonce) (*wrapmodels.PendingProof, error) {
	query := `
		SELECT nonce, user_principal, method, credential_hash, created_at, expires_at
		FROM pending_proofs
		WHERE nonce = $1
	`
	proof, err := scanProof(p.q.QueryRowContext(ctx, query, int64(nonce)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get proof: %w", err)
	}
	return proof, nil
}

func (p *pgQueries) InsertProof(ctx context.Context, proof *wrapmodels.PendingProof) error {
	query := `
		INSERT INTO pending_proofs (nonce, user_principal, method, credential_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.q.ExecContext(ctx, query,
		int64(proof.Nonce),
		string(proof.User),
		proof.Method,
		proof.CredentialHash[:],
		int64(proof.CreatedAt),
		int64(proof.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert proof: %w", err)
	}
	return nil
}

func (p *pgQueries) DeleteProof(ctx context.Context, nonce domain.Nonce) error {
	result, err := p.q.ExecContext(ctx, `DELETE FROM pending_proofs WHERE nonce = $1`, int64(nonce))
	if err != nil {
		return fmt.Errorf("delete proof: %w", err)
	}
	return requireRow(result, "delete proof")
}

func (p *pgQueries) NextNonce(ctx context.Context) (domain.Nonce, error) {
	query := `
		UPDATE ledger_config
		SET nonce_counter = nonce_counter + 1
		WHERE id = 1
		RETURNING nonce_counter - 1
	`
	var nonce int64
	if err := p.q.QueryRowContext(ctx, query).Scan(&nonce); err != nil {
		return 0, fmt.Errorf("next nonce: %w", err)
	}
	return domain.Nonce(nonce), nil
}

func (p *pgQueries) GetIdentity(ctx context.Context, user domain.Principal) (*wrapmodels.WrappedIdentity, error) {
	query := `
		SELECT user_principal, method, token_id, active, wrapped_at, revoked_at, updated_at
		FROM wrapped_identities
		WHERE user_principal = $1
	`
	rec, err := scanIdentity(p.q.QueryRowContext(ctx, query, string(user)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return rec, nil
}

func (p *pgQueries) InsertIdentity(ctx context.Context, rec *wrapmodels.WrappedIdentity) error {
	query := `
		INSERT INTO wrapped_identities (user_principal, method, token_id, active, wrapped_at, revoked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.q.ExecContext(ctx, query,
		string(rec.User),
		rec.Method,
		int64(rec.TokenID),
		rec.Active,
		int64(rec.WrappedAt),
		nullHeight(rec.RevokedAt),
		int64(rec.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (p *pgQueries) UpdateIdentity(ctx context.Context, rec *wrapmodels.WrappedIdentity) error {
	query := `
		UPDATE wrapped_identities
		SET method = $2, token_id = $3, active = $4, wrapped_at = $5, revoked_at = $6, updated_at = $7
		WHERE user_principal = $1
	`
	result, err := p.q.ExecContext(ctx, query,
		string(rec.User),
		rec.Method,
		int64(rec.TokenID),
		rec.Active,
		int64(rec.WrappedAt),
		nullHeight(rec.RevokedAt),
		int64(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	return requireRow(result, "update identity")
}

func (p *pgQueries) SetOracle(ctx context.Context, oracle domain.Principal) error {
	_, err := p.q.ExecContext(ctx, `UPDATE ledger_config SET oracle = $1 WHERE id = 1`, string(oracle))
	if err != nil {
		return fmt.Errorf("set oracle: %w", err)
	}
	return nil
}

func (p *pgQueries) TokenOwner(ctx context.Context, id domain.TokenID) (domain.Principal, error) {
	var owner string
	err := p.q.QueryRowContext(ctx, `SELECT owner_principal FROM tokens WHERE token_id = $1`, int64(id)).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("token owner: %w", err)
	}
	return domain.Principal(owner), nil
}

func (p *pgQueries) TokenMetadata(ctx context.Context, id domain.TokenID) (*tokenmodels.Metadata, error) {
	query := `
		SELECT token_id, auth_method, extra, status, minted_at
		FROM tokens
		WHERE token_id = $1
	`
	meta, err := scanMetadata(p.q.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("token metadata: %w", err)
	}
	return meta, nil
}

func (p *pgQueries) InsertToken(ctx context.Context, owner domain.Principal, meta *tokenmodels.Metadata) error {
	query := `
		INSERT INTO tokens (token_id, owner_principal, auth_method, extra, status, minted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.q.ExecContext(ctx, query,
		int64(meta.TokenID),
		string(owner),
		meta.AuthMethod,
		meta.Extra,
		meta.Status,
		int64(meta.MintedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	bump := `
		INSERT INTO owner_counts (owner_principal, live_tokens)
		VALUES ($1, 1)
		ON CONFLICT (owner_principal) DO UPDATE SET
			live_tokens = owner_counts.live_tokens + 1
	`
	if _, err := p.q.ExecContext(ctx, bump, string(owner)); err != nil {
		return fmt.Errorf("increment owner count: %w", err)
	}
	return nil
}

func (p *pgQueries) DeleteToken(ctx context.Context, id domain.TokenID) error {
	var owner string
	err := p.q.QueryRowContext(ctx, `DELETE FROM tokens WHERE token_id = $1 RETURNING owner_principal`, int64(id)).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("delete token: %w", err)
	}
	drop := `
		UPDATE owner_counts
		SET live_tokens = live_tokens - 1
		WHERE owner_principal = $1 AND live_tokens > 0
	`
	if _, err := p.q.ExecContext(ctx, drop, owner); err != nil {
		return fmt.Errorf("decrement owner count: %w", err)
	}
	return nil
}

func (p *pgQueries) UpdateTokenMetadata(ctx context.Context, meta *tokenmodels.Metadata) error {
	query := `
		UPDATE tokens
		SET auth_method = $2, extra = $3, status = $4, minted_at = $5
		WHERE token_id = $1
	`
	result, err := p.q.ExecContext(ctx, query,
		int64(meta.TokenID),
		meta.AuthMethod,
		meta.Extra,
		meta.Status,
		int64(meta.MintedAt),
	)
	if err != nil {
		return fmt.Errorf("update token metadata: %w", err)
	}
	return requireRow(result, "update token metadata")
}

func (p *pgQueries) NextTokenID(ctx context.Context) (domain.TokenID, error) {
	query := `
		UPDATE ledger_config
		SET last_token_id = last_token_id + 1
		WHERE id = 1
		RETURNING last_token_id
	`
	var id int64
	if err := p.q.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("next token id: %w", err)
	}
	return domain.TokenID(id), nil
}

func (p *pgQueries) OwnerCount(ctx context.Context, owner domain.Principal) (uint64, error) {
	var count int64
	err := p.q.QueryRowContext(ctx, `SELECT live_tokens FROM owner_counts WHERE owner_principal = $1`, string(owner)).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("owner count: %w", err)
	}
	return uint64(count), nil
}

func (p *pgQueries) LastTokenID(ctx context.Context) (domain.TokenID, error) {
	var id int64
	if err := p.q.QueryRowContext(ctx, `SELECT last_token_id FROM ledger_config WHERE id = 1`).Scan(&id); err != nil {
		return 0, fmt.Errorf("last token id: %w", err)
	}
	return domain.TokenID(id), nil
}

func (p *pgQueries) ContractOwner(ctx context.Context) (domain.Principal, error) {
	var owner string
	if err := p.q.QueryRowContext(ctx, `SELECT contract_owner FROM ledger_config WHERE id = 1`).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("contract owner: %w", err)
	}
	return domain.Principal(owner), nil
}

func (p *pgQueries) Oracle(ctx context.Context) (domain.Principal, error) {
	return p.optionalPrincipal(ctx, `SELECT oracle FROM ledger_config WHERE id = 1`, "oracle")
}

func (p *pgQueries) AuthWrapper(ctx context.Context) (domain.Principal, error) {
	return p.optionalPrincipal(ctx, `SELECT auth_wrapper FROM ledger_config WHERE id = 1`, "auth wrapper")
}

func (p *pgQueries) SetAuthWrapper(ctx context.Context, wrapper domain.Principal) error {
	_, err := p.q.ExecContext(ctx, `UPDATE ledger_config SET auth_wrapper = $1 WHERE id = 1`, string(wrapper))
	if err != nil {
		return fmt.Errorf("set auth wrapper: %w", err)
	}
	return nil
}

func (p *pgQueries) MaxTokens(ctx context.Context) (uint64, error) {
	var limit int64
	if err := p.q.QueryRowContext(ctx, `SELECT max_tokens FROM ledger_config WHERE id = 1`).Scan(&limit); err != nil {
		return 0, fmt.Errorf("max tokens: %w", err)
	}
	return uint64(limit), nil
}

func (p *pgQueries) SetMaxTokens(ctx context.Context, limit uint64) error {
	_, err := p.q.ExecContext(ctx, `UPDATE ledger_config SET max_tokens = $1 WHERE id = 1`, int64(limit))
	if err != nil {
		return fmt.Errorf("set max tokens: %w", err)
	}
	return nil
}

func (p *pgQueries) MintFee(ctx context.Context) (uint64, error) {
	var fee int64
	if err := p.q.QueryRowContext(ctx, `SELECT mint_fee FROM ledger_config WHERE id = 1`).Scan(&fee); err != nil {
		return 0, fmt.Errorf("mint fee: %w", err)
	}
	return uint64(fee), nil
}

func (p *pgQueries) SetMintFee(ctx context.Context, fee uint64) error {
	_, err := p.q.ExecContext(ctx, `UPDATE ledger_config SET mint_fee = $1 WHERE id = 1`, int64(fee))
	if err != nil {
		return fmt.Errorf("set mint fee: %w", err)
	}
	return nil
}

func (p *pgQueries) optionalPrincipal(ctx context.Context, query, what string) (domain.Principal, error) {
	var value sql.NullString
	if err := p.q.QueryRowContext(ctx, query).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sentinel.ErrNotFound
		}
		return "", fmt.Errorf("%s: %w", what, err)
	}
	if !value.Valid || value.String == "" {
		return "", sentinel.ErrNotFound
	}
	return domain.Principal(value.String), nil
}

type row interface {
	Scan(dest ...any) error
}

func scanProof(r row) (*wrapmodels.PendingProof, error) {
	var (
		proof               wrapmodels.PendingProof
		nonce, created, exp int64
		user                string
		hash                []byte
	)
	if err := r.Scan(&nonce, &user, &proof.Method, &hash, &created, &exp); err != nil {
		return nil, err
	}
	if len(hash) != domain.CredentialHashLen {
		return nil, fmt.Errorf("credential hash column holds %d bytes", len(hash))
	}
	proof.Nonce = domain.Nonce(nonce)
	proof.User = domain.Principal(user)
	copy(proof.CredentialHash[:], hash)
	proof.CreatedAt = domain.Height(created)
	proof.ExpiresAt = domain.Height(exp)
	return &proof, nil
}

func scanIdentity(r row) (*wrapmodels.WrappedIdentity, error) {
	var (
		rec                       wrapmodels.WrappedIdentity
		tokenID, wrapped, updated int64
		user                      string
		revoked                   sql.NullInt64
	)
	if err := r.Scan(&user, &rec.Method, &tokenID, &rec.Active, &wrapped, &revoked, &updated); err != nil {
		return nil, err
	}
	rec.User = domain.Principal(user)
	rec.TokenID = domain.TokenID(tokenID)
	rec.WrappedAt = domain.Height(wrapped)
	rec.UpdatedAt = domain.Height(updated)
	if revoked.Valid {
		at := domain.Height(revoked.Int64)
		rec.RevokedAt = &at
	}
	return &rec, nil
}

func scanMetadata(r row) (*tokenmodels.Metadata, error) {
	var (
		meta       tokenmodels.Metadata
		id, minted int64
	)
	if err := r.Scan(&id, &meta.AuthMethod, &meta.Extra, &meta.Status, &minted); err != nil {
		return nil, err
	}
	meta.TokenID = domain.TokenID(id)
	meta.MintedAt = domain.Height(minted)
	return &meta, nil
}

func nullHeight(h *domain.Height) sql.NullInt64 {
	if h == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*h), Valid: true}
}

func requireRow(result sql.Result, action string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", action, err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes SQLSTATE 23505 from either driver the
// server can run with.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
