package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"mailsync/core/domain"
	"mailsync/core/port/out"
	"mailsync/pkg/apperr"
)

// =============================================================================
// ModifierAdapter - durable modifier queue (Postgres)
// =============================================================================

type ModifierAdapter struct {
	db *sqlx.DB
}

var _ out.ModifierRepository = (*ModifierAdapter)(nil)

func NewModifierAdapter(db *sqlx.DB) *ModifierAdapter {
	return &ModifierAdapter{db: db}
}

// =============================================================================
// Entity
// =============================================================================

type modifierEntity struct {
	ID            string         `db:"id"`
	EntityID      string         `db:"entity_id"`
	EntityType    string         `db:"entity_type"`
	AccountID     string         `db:"account_id"`
	Provider      string         `db:"provider"`
	Type          string         `db:"type"`
	Status        string         `db:"status"`
	Attempts      int            `db:"attempts"`
	MaxAttempts   int            `db:"max_attempts"`
	NextAttemptAt sql.NullTime   `db:"next_attempt_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastError     sql.NullString `db:"last_error"`
	Payload       []byte         `db:"payload"`
}

func (e *modifierEntity) toDomain() *domain.ModifierRecord {
	rec := &domain.ModifierRecord{
		ID:          e.ID,
		EntityID:    e.EntityID,
		EntityType:  domain.EntityType(e.EntityType),
		AccountID:   e.AccountID,
		Provider:    domain.Provider(e.Provider),
		Type:        domain.ModifierType(e.Type),
		Status:      domain.ModifierStatus(e.Status),
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	if e.NextAttemptAt.Valid {
		t := e.NextAttemptAt.Time
		rec.NextAttemptAt = &t
	}
	if e.LastError.Valid {
		rec.LastError = e.LastError.String
	}
	if len(e.Payload) > 0 {
		rec.Payload = json.RawMessage(e.Payload)
	}
	return rec
}

// =============================================================================
// CRUD
// =============================================================================

func (a *ModifierAdapter) Create(ctx context.Context, rec *domain.ModifierRecord) error {
	query := `
		INSERT INTO modifiers (
			id, entity_id, entity_type, account_id, provider,
			type, status, attempts, max_attempts, next_attempt_at,
			created_at, updated_at, last_error, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := a.db.ExecContext(ctx, query,
		rec.ID,
		rec.EntityID,
		string(rec.EntityType),
		rec.AccountID,
		string(rec.Provider),
		string(rec.Type),
		string(rec.Status),
		rec.Attempts,
		rec.MaxAttempts,
		nullTime(rec.NextAttemptAt),
		rec.CreatedAt,
		rec.UpdatedAt,
		nullString(rec.LastError),
		[]byte(rec.Payload),
	)
	if err != nil {
		return apperr.DatabaseError("create modifier", err)
	}
	return nil
}

func (a *ModifierAdapter) GetByID(ctx context.Context, id string) (*domain.ModifierRecord, error) {
	var entity modifierEntity
	query := `SELECT * FROM modifiers WHERE id = $1`
	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("modifier")
		}
		return nil, apperr.DatabaseError("get modifier", err)
	}
	return entity.toDomain(), nil
}

func (a *ModifierAdapter) Update(ctx context.Context, rec *domain.ModifierRecord) error {
	query := `
		UPDATE modifiers SET
			status = $1,
			attempts = $2,
			next_attempt_at = $3,
			updated_at = $4,
			last_error = $5,
			payload = $6
		WHERE id = $7
	`

	res, err := a.db.ExecContext(ctx, query,
		string(rec.Status),
		rec.Attempts,
		nullTime(rec.NextAttemptAt),
		rec.UpdatedAt,
		nullString(rec.LastError),
		[]byte(rec.Payload),
		rec.ID,
	)
	if err != nil {
		return apperr.DatabaseError("update modifier", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("modifier")
	}
	return nil
}

func (a *ModifierAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM modifiers WHERE id = $1`, id)
	if err != nil {
		return apperr.DatabaseError("delete modifier", err)
	}
	return nil
}

// =============================================================================
// Queue Operations
// =============================================================================

func (a *ModifierAdapter) GetPendingByEntity(ctx context.Context, entityID string) ([]*domain.ModifierRecord, error) {
	query := `
		SELECT * FROM modifiers
		WHERE entity_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC
	`
	return a.selectRecords(ctx, "pending by entity", query, entityID)
}

func (a *ModifierAdapter) GetPendingByAccount(ctx context.Context, accountID string) ([]*domain.ModifierRecord, error) {
	query := `
		SELECT * FROM modifiers
		WHERE account_id = $1 AND status = 'pending'
		ORDER BY created_at ASC, id ASC
	`
	return a.selectRecords(ctx, "pending by account", query, accountID)
}

func (a *ModifierAdapter) GetAllPending(ctx context.Context) ([]*domain.ModifierRecord, error) {
	query := `
		SELECT * FROM modifiers
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
	`
	return a.selectRecords(ctx, "all pending", query)
}

func (a *ModifierAdapter) HasPending(ctx context.Context, entityID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM modifiers
			WHERE entity_id = $1 AND status = 'pending'
		)
	`
	if err := a.db.GetContext(ctx, &exists, query, entityID); err != nil {
		return false, apperr.DatabaseError("has pending", err)
	}
	return exists, nil
}

func (a *ModifierAdapter) selectRecords(ctx context.Context, op, query string, args ...any) ([]*domain.ModifierRecord, error) {
	var entities []modifierEntity
	if err := a.db.SelectContext(ctx, &entities, query, args...); err != nil {
		return nil, apperr.DatabaseError(op, err)
	}
	records := make([]*domain.ModifierRecord, len(entities))
	for i := range entities {
		records[i] = entities[i].toDomain()
	}
	return records, nil
}

// ResetProcessing returns records stranded in 'processing' by a crash to
// 'pending' so the next drain picks them up. Called once at startup before
// the processor goes online.
func (a *ModifierAdapter) ResetProcessing(ctx context.Context) (int64, error) {
	query := `UPDATE modifiers SET status = 'pending', updated_at = NOW() WHERE status = 'processing'`
	res, err := a.db.ExecContext(ctx, query)
	if err != nil {
		return 0, apperr.DatabaseError("reset processing modifiers", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// =============================================================================
// Cleanup
// =============================================================================

func (a *ModifierAdapter) DeleteFailedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM modifiers WHERE status = 'failed' AND updated_at < $1`
	res, err := a.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, apperr.DatabaseError("delete failed modifiers", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (a *ModifierAdapter) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM modifiers WHERE account_id = $1`, accountID)
	if err != nil {
		return apperr.DatabaseError("delete account modifiers", err)
	}
	return nil
}

// =============================================================================
// ConflictAdapter
// =============================================================================

type ConflictAdapter struct {
	db *sqlx.DB
}

var _ out.ConflictRepository = (*ConflictAdapter)(nil)

func NewConflictAdapter(db *sqlx.DB) *ConflictAdapter {
	return &ConflictAdapter{db: db}
}

type conflictEntity struct {
	ID            string    `db:"id"`
	EmailID       string    `db:"email_id"`
	AccountID     string    `db:"account_id"`
	Types         []byte    `db:"types"`
	Fields        []byte    `db:"fields"`
	LocalVersion  []byte    `db:"local_version"`
	ServerVersion []byte    `db:"server_version"`
	DetectedAt    time.Time `db:"detected_at"`
}

func (e *conflictEntity) toDomain() (*domain.PendingConflict, error) {
	c := &domain.PendingConflict{
		ID:         e.ID,
		EmailID:    e.EmailID,
		AccountID:  e.AccountID,
		DetectedAt: e.DetectedAt,
	}
	if err := json.Unmarshal(e.Types, &c.Types); err != nil {
		return nil, apperr.BadPayload("decode conflict types: " + err.Error())
	}
	if err := json.Unmarshal(e.Fields, &c.ConflictingFields); err != nil {
		return nil, apperr.BadPayload("decode conflict fields: " + err.Error())
	}
	if err := json.Unmarshal(e.LocalVersion, &c.LocalVersion); err != nil {
		return nil, apperr.BadPayload("decode local version: " + err.Error())
	}
	if err := json.Unmarshal(e.ServerVersion, &c.ServerVersion); err != nil {
		return nil, apperr.BadPayload("decode server version: " + err.Error())
	}
	return c, nil
}

func (a *ConflictAdapter) Create(ctx context.Context, conflict *domain.PendingConflict) error {
	types, _ := json.Marshal(conflict.Types)
	fields, _ := json.Marshal(conflict.ConflictingFields)
	local, _ := json.Marshal(conflict.LocalVersion)
	server, _ := json.Marshal(conflict.ServerVersion)

	query := `
		INSERT INTO conflicts (
			id, email_id, account_id, types, fields,
			local_version, server_version, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := a.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.EmailID,
		conflict.AccountID,
		types,
		fields,
		local,
		server,
		conflict.DetectedAt,
	)
	if err != nil {
		return apperr.DatabaseError("create conflict", err)
	}
	return nil
}

func (a *ConflictAdapter) GetByID(ctx context.Context, id string) (*domain.PendingConflict, error) {
	var entity conflictEntity
	query := `SELECT * FROM conflicts WHERE id = $1`
	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("conflict")
		}
		return nil, apperr.DatabaseError("get conflict", err)
	}
	return entity.toDomain()
}

func (a *ConflictAdapter) GetByEmail(ctx context.Context, emailID string) (*domain.PendingConflict, error) {
	var entity conflictEntity
	query := `SELECT * FROM conflicts WHERE email_id = $1 ORDER BY detected_at ASC LIMIT 1`
	if err := a.db.GetContext(ctx, &entity, query, emailID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("conflict for email")
		}
		return nil, apperr.DatabaseError("get conflict by email", err)
	}
	return entity.toDomain()
}

func (a *ConflictAdapter) GetByAccount(ctx context.Context, accountID string) ([]*domain.PendingConflict, error) {
	var entities []conflictEntity
	query := `SELECT * FROM conflicts WHERE account_id = $1 ORDER BY detected_at ASC`
	if err := a.db.SelectContext(ctx, &entities, query, accountID); err != nil {
		return nil, apperr.DatabaseError("list conflicts", err)
	}
	conflicts := make([]*domain.PendingConflict, 0, len(entities))
	for i := range entities {
		c, err := entities[i].toDomain()
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

func (a *ConflictAdapter) Delete(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM conflicts WHERE id = $1`, id)
	if err != nil {
		return apperr.DatabaseError("delete conflict", err)
	}
	return nil
}

// =============================================================================
// Null helpers
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
