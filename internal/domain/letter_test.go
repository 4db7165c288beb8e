package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewLetter(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	createdAt := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("EST", -5*3600))
	mood := Mood(" Happy ")
	temp := 71.5

	letter := NewLetter(LetterDraft{
		UserID:  userID,
		Title:   "  Dear me  ",
		Content: "  Remember this spring.\n",
		Metadata: Metadata{
			Mood:        &mood,
			Temperature: &temp,
			Location:    strPtr("   "),
			CurrentSong: strPtr(" Clair de Lune "),
		},
		Goals: []Goal{
			{Text: "run a marathon"},
			{Text: "   "},
			{Text: " learn Go ", Completed: true},
			{Text: ""},
			{Text: "call grandma"},
		},
	}, createdAt)

	require.NotNil(t, letter)
	assert.NotEqual(t, uuid.Nil, letter.ID)
	assert.Equal(t, userID, letter.UserID)
	assert.Equal(t, "Dear me", letter.Title)
	assert.Equal(t, "  Remember this spring.\n", letter.Content, "body is kept verbatim")
	assert.Equal(t, time.UTC, letter.CreatedAt.Location())
	assert.True(t, letter.CreatedAt.Equal(createdAt))

	require.NotNil(t, letter.Metadata.Mood)
	assert.Equal(t, MoodHappy, *letter.Metadata.Mood)
	assert.Nil(t, letter.Metadata.Weather)
	assert.Nil(t, letter.Metadata.Location, "blank optional field becomes absent")
	require.NotNil(t, letter.Metadata.CurrentSong)
	assert.Equal(t, "Clair de Lune", *letter.Metadata.CurrentSong)
	require.NotNil(t, letter.Metadata.Temperature)
	assert.InDelta(t, 71.5, *letter.Metadata.Temperature, 0.0001)

	assert.Equal(t, []Goal{
		{Text: "run a marathon"},
		{Text: "learn Go", Completed: true},
		{Text: "call grandma"},
	}, letter.Goals, "blank goals are dropped and order is preserved")
}

func TestNewLetterWithoutGoals(t *testing.T) {
	t.Parallel()

	letter := NewLetter(LetterDraft{UserID: uuid.New(), Title: "t", Content: "c"}, time.Now())
	assert.NotNil(t, letter.Goals)
	assert.Empty(t, letter.Goals)
}

func TestMetadataValidate(t *testing.T) {
	t.Parallel()

	bogusMood := Mood("meh")
	bogusWeather := Weather("foggy")
	calm := MoodCalm
	snowy := WeatherSnowy

	tests := []struct {
		name      string
		metadata  Metadata
		wantField string
	}{
		{name: "empty metadata", metadata: Metadata{}},
		{name: "valid closed sets", metadata: Metadata{Mood: &calm, Weather: &snowy}},
		{name: "free text is never rejected", metadata: Metadata{TopHeadline: strPtr("anything at all")}},
		{name: "unknown mood", metadata: Metadata{Mood: &bogusMood}, wantField: "mood"},
		{name: "unknown weather", metadata: Metadata{Weather: &bogusWeather}, wantField: "weather"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.metadata.Validate()
			if tc.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidMetadata)
			var se *ScheduleError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.wantField, se.Field)
		})
	}
}

func TestMetadataNormalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	loc := " Lisbon "
	in := Metadata{Location: &loc}
	out := in.Normalize()

	assert.Equal(t, " Lisbon ", *in.Location)
	assert.Equal(t, "Lisbon", *out.Location)
}
