package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialStore persists one OAuth credential row per athlete.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Get returns the credential for the athlete, or nil when the athlete
// has never authorized.
func (s *CredentialStore) Get(ctx context.Context, athleteID int64) (*Credential, error) {
	var cred Credential
	err := s.db.WithContext(ctx).Where("athlete_id = ?", athleteID).First(&cred).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Upsert inserts the credential or overwrites the token triple of an
// existing row for the same athlete.
func (s *CredentialStore) Upsert(ctx context.Context, cred *Credential) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "athlete_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(cred).Error
}

// AthleteIDs lists every athlete with a stored credential. Used by the
// scheduled sync worker to decide whose history to pull.
func (s *CredentialStore) AthleteIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.WithContext(ctx).Model(&Credential{}).Pluck("athlete_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
