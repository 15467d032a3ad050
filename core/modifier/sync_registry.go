package modifier

import (
	"fmt"

	"github.com/goccy/go-json"

	"mailsync/core/domain"
)

// =============================================================================
// Record <-> Modifier conversion
// =============================================================================

// ToRecord builds the durable form of a modifier, ready for the queue.
func ToRecord(m Modifier) (*domain.ModifierRecord, error) {
	payload, err := m.Payload()
	if err != nil {
		return nil, fmt.Errorf("serialize %s payload: %w", m.Type(), err)
	}

	return &domain.ModifierRecord{
		ID:          m.ID(),
		EntityID:    m.EntityID(),
		EntityType:  m.EntityType(),
		AccountID:   m.AccountID(),
		Provider:    m.Provider(),
		Type:        m.Type(),
		Status:      domain.ModifierStatusPending,
		MaxAttempts: domain.DefaultMaxAttempts,
		CreatedAt:   m.CreatedAt(),
		UpdatedAt:   m.CreatedAt(),
		Payload:     payload,
	}, nil
}

// FromRecord rebuilds a fully functional modifier from its durable form.
// Every queued mutation survives restarts through this path.
func FromRecord(rec *domain.ModifierRecord) (Modifier, error) {
	switch rec.Type {
	case domain.ModifierArchive:
		var p domain.ArchivePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		return &archiveModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierUnarchive:
		var p domain.ArchivePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		return &unarchiveModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierDelete:
		var p domain.DeletePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		return &deleteModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierUndelete:
		var p domain.DeletePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		return &undeleteModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierMarkRead:
		return &markReadModifier{base: baseFromRecord(rec)}, nil

	case domain.ModifierMarkUnread:
		return &markUnreadModifier{base: baseFromRecord(rec)}, nil

	case domain.ModifierMove:
		var p domain.MovePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		if p.TargetFolder == "" && p.TargetID == "" {
			return nil, fmt.Errorf("move modifier %s has no target", rec.ID)
		}
		return &moveModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierStar:
		return &starModifier{base: baseFromRecord(rec)}, nil

	case domain.ModifierUnstar:
		return &unstarModifier{base: baseFromRecord(rec)}, nil

	case domain.ModifierDraftUpdate:
		var p domain.DraftUpdatePayload
		if err := unmarshalPayload(rec, &p); err != nil {
			return nil, err
		}
		return &draftUpdateModifier{base: baseFromRecord(rec), payload: p}, nil

	case domain.ModifierDraftDelete:
		return &draftDeleteModifier{base: baseFromRecord(rec)}, nil

	default:
		return nil, fmt.Errorf("unknown modifier type %q", rec.Type)
	}
}

func unmarshalPayload(rec *domain.ModifierRecord, dst any) error {
	if len(rec.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(rec.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload for %s: %w", rec.Type, rec.ID, err)
	}
	return nil
}

// FromRecords converts a batch, skipping nothing; one bad record fails the
// whole batch so corruption is noticed instead of silently dropped.
func FromRecords(recs []*domain.ModifierRecord) ([]Modifier, error) {
	mods := make([]Modifier, 0, len(recs))
	for _, rec := range recs {
		m, err := FromRecord(rec)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}
