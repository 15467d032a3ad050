package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// TokenAdapter - per-account OAuth tokens (Postgres)
// =============================================================================

type TokenAdapter struct {
	db *sqlx.DB
}

var _ out.TokenStore = (*TokenAdapter)(nil)

func NewTokenAdapter(db *sqlx.DB) *TokenAdapter {
	return &TokenAdapter{db: db}
}

type tokenEntity struct {
	Provider     string         `db:"provider"`
	AccountID    string         `db:"account_id"`
	AccessToken  string         `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenType    sql.NullString `db:"token_type"`
	Expiry       sql.NullTime   `db:"expiry"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (a *TokenAdapter) Get(ctx context.Context, provider domain.Provider, accountID string) (*oauth2.Token, error) {
	var entity tokenEntity
	query := `SELECT * FROM oauth_tokens WHERE provider = $1 AND account_id = $2`
	if err := a.db.GetContext(ctx, &entity, query, string(provider), accountID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("token")
		}
		return nil, apperr.DatabaseError("get token", err)
	}

	tok := &oauth2.Token{
		AccessToken:  entity.AccessToken,
		RefreshToken: entity.RefreshToken.String,
		TokenType:    entity.TokenType.String,
	}
	if entity.Expiry.Valid {
		tok.Expiry = entity.Expiry.Time
	}
	return tok, nil
}

func (a *TokenAdapter) Save(ctx context.Context, provider domain.Provider, accountID string, token *oauth2.Token) error {
	query := `
		INSERT INTO oauth_tokens (
			provider, account_id, access_token, refresh_token, token_type, expiry, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (provider, account_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), oauth_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()
	`
	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, query,
		string(provider),
		accountID,
		token.AccessToken,
		nullString(token.RefreshToken),
		nullString(token.TokenType),
		expiry,
	)
	if err != nil {
		return apperr.DatabaseError("save token", err)
	}
	return nil
}

func (a *TokenAdapter) Delete(ctx context.Context, provider domain.Provider, accountID string) error {
	query := `DELETE FROM oauth_tokens WHERE provider = $1 AND account_id = $2`
	if _, err := a.db.ExecContext(ctx, query, string(provider), accountID); err != nil {
		return apperr.DatabaseError("delete token", err)
	}
	return nil
}
