package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mood is the author's self-reported mood while writing.
type Mood string

// Recognized moods.
const (
	MoodHappy   Mood = "happy"
	MoodSad     Mood = "sad"
	MoodAngry   Mood = "angry"
	MoodAnxious Mood = "anxious"
	MoodExcited Mood = "excited"
	MoodCalm    Mood = "calm"
)

// Valid reports whether m is one of the recognized moods.
func (m Mood) Valid() bool {
	switch m {
	case MoodHappy, MoodSad, MoodAngry, MoodAnxious, MoodExcited, MoodCalm:
		return true
	default:
		return false
	}
}

// Weather is the weather at the time of writing.
type Weather string

// Recognized weather values.
const (
	WeatherSunny  Weather = "sunny"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
	WeatherSnowy  Weather = "snowy"
)

// Valid reports whether w is one of the recognized weather values.
func (w Weather) Valid() bool {
	switch w {
	case WeatherSunny, WeatherCloudy, WeatherRainy, WeatherSnowy:
		return true
	default:
		return false
	}
}

// Goal is something the author wants their future self to have done.
type Goal struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Metadata captures the context a letter was written in.
// Every field is optional; nil means the author left it out.
type Metadata struct {
	Mood        *Mood    `json:"mood,omitempty"`
	Weather     *Weather `json:"weather,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"` // degrees Fahrenheit
	Location    *string  `json:"location,omitempty"`
	CurrentSong *string  `json:"current_song,omitempty"`
	TopHeadline *string  `json:"top_headline,omitempty"`
}

// Normalize returns a copy with surrounding whitespace trimmed and blank
// values replaced by nil.
func (m Metadata) Normalize() Metadata {
	out := Metadata{Temperature: m.Temperature}
	if m.Mood != nil {
		if v := Mood(strings.ToLower(strings.TrimSpace(string(*m.Mood)))); v != "" {
			out.Mood = &v
		}
	}
	if m.Weather != nil {
		if v := Weather(strings.ToLower(strings.TrimSpace(string(*m.Weather)))); v != "" {
			out.Weather = &v
		}
	}
	out.Location = trimmedOrNil(m.Location)
	out.CurrentSong = trimmedOrNil(m.CurrentSong)
	out.TopHeadline = trimmedOrNil(m.TopHeadline)
	return out
}

// Validate checks the closed-set fields. Free-text fields are never rejected.
func (m Metadata) Validate() error {
	if m.Mood != nil && !m.Mood.Valid() {
		return NewMetadataError("mood", "unrecognized mood "+string(*m.Mood))
	}
	if m.Weather != nil && !m.Weather.Valid() {
		return NewMetadataError("weather", "unrecognized weather "+string(*m.Weather))
	}
	return nil
}

// LetterDraft is the author's submission before it becomes a Letter.
type LetterDraft struct {
	UserID   uuid.UUID
	Title    string
	Content  string
	Metadata Metadata
	Goals    []Goal
}

// Letter is a message written to the author's future self.
// It is owned exclusively by UserID.
type Letter struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Goals     []Goal    `json:"goals"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLetter builds a Letter from a draft, assigning a fresh ID. Metadata is
// normalized and goals with blank text are dropped; the remaining goals keep
// their order. The result is not validated.
func NewLetter(draft LetterDraft, createdAt time.Time) *Letter {
	goals := make([]Goal, 0, len(draft.Goals))
	for _, g := range draft.Goals {
		text := strings.TrimSpace(g.Text)
		if text == "" {
			continue
		}
		goals = append(goals, Goal{Text: text, Completed: g.Completed})
	}

	return &Letter{
		ID:        uuid.New(),
		UserID:    draft.UserID,
		Title:     strings.TrimSpace(draft.Title),
		Content:   draft.Content,
		Metadata:  draft.Metadata.Normalize(),
		Goals:     goals,
		CreatedAt: createdAt.UTC(),
	}
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
