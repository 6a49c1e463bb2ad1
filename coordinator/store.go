package coordinator

import (
	"context"
	"errors"
)

var (
	// ErrRecordNotFound is returned when a referenced row does not exist.
	ErrRecordNotFound = errors.New("record not found")
	// ErrRecordExists is returned when an insert violates a uniqueness constraint.
	ErrRecordExists = errors.New("record already exists")
	// ErrRecordConflict is returned when a conditional update matched no row.
	ErrRecordConflict = errors.New("record state conflict")
)

// Store persists collaborations, participations and computation results.
// Any error other than the Err* values above is a storage failure.
type Store interface {
	CreateProviderConfig(ctx context.Context, cfg *ProviderConfig) (*ProviderConfig, error)
	GetProviderConfig(ctx context.Context, id int64) (*ProviderConfig, error)

	CreateCollaboration(ctx context.Context, c *Collaboration) (*Collaboration, error)
	GetCollaboration(ctx context.Context, id int64) (*Collaboration, error)
	ListCollaborations(ctx context.Context) ([]*Collaboration, error)
	// DeleteCollaboration removes the collaboration with its participations
	// and result.
	DeleteCollaboration(ctx context.Context, id int64) error
	AppendOutputParty(ctx context.Context, id int64, endpoint string) error

	// CreateParticipation returns ErrRecordExists for a duplicate and
	// ErrRecordNotFound for an unknown collaboration.
	CreateParticipation(ctx context.Context, collabID, partyID int64) (*Participation, error)
	GetParticipation(ctx context.Context, collabID, partyID int64) (*Participation, error)
	// ListParticipations returns participations in registration order.
	ListParticipations(ctx context.Context, collabID int64) ([]*Participation, error)
	// DeleteParticipation only removes participations without an upload and
	// returns ErrRecordConflict otherwise.
	DeleteParticipation(ctx context.Context, collabID, partyID int64) error
	// ConfirmUpload sets the share ids if none are set yet and returns
	// ErrRecordConflict otherwise.
	ConfirmUpload(ctx context.Context, collabID, partyID int64, shareIDs []string) (*Participation, error)

	// CreateResult inserts the unfinished result marker. It returns
	// ErrRecordExists if a marker exists already.
	CreateResult(ctx context.Context, collabID int64) error
	// FinishResult finishes an unfinished result and returns
	// ErrRecordConflict if it was finished before.
	FinishResult(ctx context.Context, collabID int64, resultIDs []string, errMsg *string) error
	GetResult(ctx context.Context, collabID int64) (*ComputationResult, error)

	// Ping reports whether the store can serve queries.
	Ping(ctx context.Context) error
	Close() error
}
