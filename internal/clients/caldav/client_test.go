package caldav

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tazhate/medremind/internal/calendar"
)

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", "", "", nil)
	assert.Equal(t, DefaultiCloudURL, c.baseURL)
	assert.False(t, c.IsConfigured())

	c = NewClient("https://dav.example.com", "ravi", "app-pass", nil)
	assert.True(t, c.IsConfigured())
}

func TestObjectPath_RoundTrip(t *testing.T) {
	c := NewClient("https://dav.example.com", "ravi", "app-pass", nil)

	for _, cal := range []string{"/calendars/ravi/meds", "/calendars/ravi/meds/"} {
		c.SetCalendarPath(cal)
		uid := calendar.UID("med-1", "08:00")

		p := c.objectPath(uid)
		assert.Equal(t, "/calendars/ravi/meds/med-1-0800.ics", p)
		assert.Equal(t, uid, uidFromPath(p))
	}
}
