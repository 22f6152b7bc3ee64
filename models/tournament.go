package models

import "time"

// TournamentStatus представляет статусы турнира.
type TournamentStatus string

const (
	StatusUpcoming           TournamentStatus = "upcoming"
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusActive             TournamentStatus = "active"
	StatusFinished           TournamentStatus = "finished"
	StatusCancelled          TournamentStatus = "cancelled"
)

// Tournament группирует матчи и имеет собственный лидерборд.
type Tournament struct {
	ID                int              `json:"id" db:"id"`
	Name              string           `json:"name" db:"name"`
	Description       *string          `json:"description,omitempty" db:"description"`
	RegistrationStart *time.Time       `json:"registration_start,omitempty" db:"registration_start"`
	RegistrationEnd   *time.Time       `json:"registration_end,omitempty" db:"registration_end"`
	StartDate         time.Time        `json:"start_date" db:"start_date"`
	EndDate           time.Time        `json:"end_date" db:"end_date"`
	Status            TournamentStatus `json:"status" db:"status"`
	IsFeatured        bool             `json:"is_featured" db:"is_featured"`
	IsPublic          bool             `json:"is_public" db:"is_public"`
	MaxParticipants   *int             `json:"max_participants,omitempty" db:"max_participants"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`

	ParticipantsCount int `json:"participants_count" db:"-"`
}

type TournamentParticipant struct {
	ID           int       `json:"id"`
	TournamentID int       `json:"tournament_id"`
	UserID       int       `json:"user_id"`
	JoinedAt     time.Time `json:"joined_at"`
}
