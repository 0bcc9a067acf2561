package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToProfileMapsFields(t *testing.T) {
	doc := &profileDoc{
		InternalID: 7, Name: "Ada", Text: "hello", Age: 30, Gender: "Woman",
		InterestedIn: []string{"Man", "NonBinary"}, VersionUUID: "", EditedAt: time.Now(),
	}
	p := toProfile(doc)
	assert.Equal(t, "Ada", p.Name)
	assert.Equal(t, 30, p.Age)
	assert.Len(t, p.InterestedIn, 2)
}

func TestToStateMapsModerationAndVisibility(t *testing.T) {
	doc := &profileDoc{
		NameModerationState: "Waiting", TextModerationState: "AcceptedByBot",
		SearchAgeMin: 18, SearchAgeMax: 40, Visible: true, PendingText: "staged",
	}
	s := toState(doc)
	assert.Equal(t, "Waiting", string(s.NameModerationState))
	assert.True(t, s.Visible)
	assert.Equal(t, "staged", s.PendingText)
}
