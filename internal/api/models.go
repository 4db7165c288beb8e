package api

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/domain"
)

// MetadataRequest is the optional writing context of a letter. Closed-set
// values are checked by the scheduler so their errors share its taxonomy.
type MetadataRequest struct {
	Mood        *string  `json:"mood,omitempty"`
	Weather     *string  `json:"weather,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Location    *string  `json:"location,omitempty"     validate:"omitempty,max=200"`
	CurrentSong *string  `json:"current_song,omitempty" validate:"omitempty,max=200"`
	TopHeadline *string  `json:"top_headline,omitempty" validate:"omitempty,max=500"`
}

// GoalRequest is one goal in a letter.
type GoalRequest struct {
	Text      string `json:"text"      validate:"max=500"`
	Completed bool   `json:"completed"`
}

// DeliveryRequest is the author's delivery intent.
type DeliveryRequest struct {
	Kind   string     `json:"kind"             validate:"required,oneof=one_shot recurring"`
	DueAt  *time.Time `json:"due_at,omitempty" validate:"required_if=Kind one_shot,excluded_unless=Kind one_shot"`
	Anchor *time.Time `json:"anchor,omitempty" validate:"required_if=Kind recurring,excluded_unless=Kind recurring"`
	Unit   string     `json:"unit,omitempty"   validate:"required_if=Kind recurring,excluded_unless=Kind recurring"`
	Count  int        `json:"count,omitempty"  validate:"excluded_unless=Kind recurring,max=1000"`
}

// ToSpec converts a validated request into a domain.DeliverySpec.
func (d DeliveryRequest) ToSpec() domain.DeliverySpec {
	if d.Kind == string(domain.SpecRecurring) {
		var anchor time.Time
		if d.Anchor != nil {
			anchor = *d.Anchor
		}
		return domain.Recurring(anchor, domain.Unit(strings.ToLower(strings.TrimSpace(d.Unit))), d.Count)
	}
	var due time.Time
	if d.DueAt != nil {
		due = *d.DueAt
	}
	return domain.OneShot(due)
}

// CreateLetterRequest defines the payload for POST /api/letters. Blank
// titles and bodies are reported by the scheduler.
type CreateLetterRequest struct {
	Title    string          `json:"title"    validate:"max=200"`
	Content  string          `json:"content"  validate:"max=100000"`
	Metadata MetadataRequest `json:"metadata"`
	Goals    []GoalRequest   `json:"goals"    validate:"max=50,dive"`
	Delivery DeliveryRequest `json:"delivery" validate:"required"`
}

// ToDraft converts the request into a draft owned by userID.
func (r CreateLetterRequest) ToDraft(userID uuid.UUID) domain.LetterDraft {
	md := domain.Metadata{
		Temperature: r.Metadata.Temperature,
		Location:    r.Metadata.Location,
		CurrentSong: r.Metadata.CurrentSong,
		TopHeadline: r.Metadata.TopHeadline,
	}
	if r.Metadata.Mood != nil {
		m := domain.Mood(*r.Metadata.Mood)
		md.Mood = &m
	}
	if r.Metadata.Weather != nil {
		w := domain.Weather(*r.Metadata.Weather)
		md.Weather = &w
	}

	goals := make([]domain.Goal, 0, len(r.Goals))
	for _, g := range r.Goals {
		goals = append(goals, domain.Goal{Text: g.Text, Completed: g.Completed})
	}

	return domain.LetterDraft{
		UserID:   userID,
		Title:    r.Title,
		Content:  r.Content,
		Metadata: md,
		Goals:    goals,
	}
}

// ScheduleResponse is a letter's delivery progress.
type ScheduleResponse struct {
	State                domain.State `json:"state"`
	NextDueAt            *time.Time   `json:"next_due_at,omitempty"`
	OccurrencesDelivered int          `json:"occurrences_delivered"`
	OccurrencesRemaining int          `json:"occurrences_remaining"`
	Version              int64        `json:"version"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

// DeliveryResponse echoes the stored delivery intent.
type DeliveryResponse struct {
	Kind   domain.SpecKind `json:"kind"`
	DueAt  *time.Time      `json:"due_at,omitempty"`
	Anchor *time.Time      `json:"anchor,omitempty"`
	Unit   domain.Unit     `json:"unit,omitempty"`
	Count  int             `json:"count,omitempty"`
}

// LetterResponse is a letter with its delivery intent and progress.
type LetterResponse struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Metadata  domain.Metadata  `json:"metadata"`
	Goals     []domain.Goal    `json:"goals"`
	Delivery  DeliveryResponse `json:"delivery"`
	Schedule  ScheduleResponse `json:"schedule"`
	CreatedAt time.Time        `json:"created_at"`
}

// CreateLetterResponse is returned by POST /api/letters.
type CreateLetterResponse struct {
	ID       string           `json:"id"`
	Schedule ScheduleResponse `json:"schedule"`
}

// LetterListResponse is returned by GET /api/letters.
type LetterListResponse struct {
	Letters []LetterResponse `json:"letters"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// PreviewResponse lists every due instant a delivery spec would produce.
type PreviewResponse struct {
	Occurrences []time.Time `json:"occurrences"`
}

// DueResponse is returned by GET /admin/due.
type DueResponse struct {
	Now       time.Time `json:"now"`
	LetterIDs []string  `json:"letter_ids"`
}

// remainingFunc reports how many occurrences of spec are still owed.
type remainingFunc func(spec domain.DeliverySpec, delivered int) int

func scheduleToResponse(st domain.ScheduleState, spec domain.DeliverySpec, remaining remainingFunc) ScheduleResponse {
	resp := ScheduleResponse{
		State:                st.State,
		NextDueAt:            st.NextDueAt,
		OccurrencesDelivered: st.OccurrencesDelivered,
		Version:              st.Version,
		UpdatedAt:            st.UpdatedAt,
	}
	if !st.State.IsTerminal() {
		resp.OccurrencesRemaining = remaining(spec, st.OccurrencesDelivered)
	}
	return resp
}

func letterToResponse(rec *domain.LetterRecord, remaining remainingFunc) LetterResponse {
	spec := rec.Spec
	delivery := DeliveryResponse{Kind: spec.Kind}
	if spec.IsRecurring() {
		anchor := spec.Anchor
		delivery.Anchor = &anchor
		delivery.Unit = spec.Unit
		delivery.Count = spec.Count
	} else {
		due := spec.DueAt
		delivery.DueAt = &due
	}

	goals := rec.Letter.Goals
	if goals == nil {
		goals = []domain.Goal{}
	}

	return LetterResponse{
		ID:        rec.Letter.ID.String(),
		UserID:    rec.Letter.UserID.String(),
		Title:     rec.Letter.Title,
		Content:   rec.Letter.Content,
		Metadata:  rec.Letter.Metadata,
		Goals:     goals,
		Delivery:  delivery,
		Schedule:  scheduleToResponse(rec.Schedule, spec, remaining),
		CreatedAt: rec.Letter.CreatedAt,
	}
}
