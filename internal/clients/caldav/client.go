package caldav

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"github.com/tazhate/medremind/internal/calendar"
	"github.com/tazhate/medremind/internal/domain"
)

const (
	// Apple iCloud CalDAV endpoint
	DefaultiCloudURL = "https://caldav.icloud.com"
)

// Client mirrors medicine schedules into a CalDAV calendar, one resource
// per dose slot.
type Client struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	timezone     *time.Location
	now          func() time.Time

	mu     sync.Mutex
	client *caldav.Client
}

// NewClient creates a new CalDAV client
func NewClient(baseURL, username, password string, tz *time.Location) *Client {
	if baseURL == "" {
		baseURL = DefaultiCloudURL
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		timezone: tz,
		now:      time.Now,
	}
}

// IsConfigured returns true if the client has credentials
func (c *Client) IsConfigured() bool {
	return c.username != "" && c.password != ""
}

// SetCalendarPath sets the calendar collection to write to.
func (c *Client) SetCalendarPath(path string) {
	c.calendarPath = path
}

// connect establishes connection to CalDAV server
func (c *Client) connect() (*caldav.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: c.username,
			password: c.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	c.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// DiscoverCalendars returns all calendars for the user
func (c *Client) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{Path: cal.Path, DisplayName: cal.Name})
	}
	return result, nil
}

// EnsureCalendar picks the first discovered calendar when none is set.
func (c *Client) EnsureCalendar(ctx context.Context) (string, error) {
	if c.calendarPath != "" {
		return c.calendarPath, nil
	}
	cals, err := c.DiscoverCalendars(ctx)
	if err != nil {
		return "", err
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found")
	}
	c.calendarPath = cals[0].Path
	return c.calendarPath, nil
}

func (c *Client) objectPath(uid string) string {
	p := c.calendarPath
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + strings.TrimSuffix(uid, "@medremind") + ".ics"
}

// PutMedicine writes one event per slot and removes events of slots the
// medicine no longer has.
func (c *Client) PutMedicine(ctx context.Context, m *domain.Medicine) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if c.calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}

	slots := calendar.Slots(m, c.timezone, c.now())
	existing, err := c.medicineObjects(ctx, client, m.ID)
	if err != nil {
		return err
	}
	for _, path := range existing {
		if _, keep := slots[uidFromPath(path)]; keep {
			continue
		}
		if err := client.RemoveAll(ctx, path); err != nil {
			return fmt.Errorf("remove stale event: %w", err)
		}
	}

	for uid, cal := range slots {
		if _, err := client.PutCalendarObject(ctx, c.objectPath(uid), cal); err != nil {
			return fmt.Errorf("put event %s: %w", uid, err)
		}
	}
	return nil
}

// DeleteMedicine removes every event of a medicine.
func (c *Client) DeleteMedicine(ctx context.Context, medicineID string) error {
	client, err := c.connect()
	if err != nil {
		return err
	}
	if c.calendarPath == "" {
		return fmt.Errorf("calendar path not specified")
	}
	paths, err := c.medicineObjects(ctx, client, medicineID)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := client.RemoveAll(ctx, path); err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
	}
	return nil
}

// medicineObjects finds the resources whose UID carries the medicine id.
func (c *Client) medicineObjects(ctx context.Context, client *caldav.Client, medicineID string) ([]string, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, Props: []string{ical.PropUID}}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Props: []caldav.PropFilter{{Name: ical.PropUID, TextMatch: &caldav.TextMatch{Text: medicineID}}},
			}},
		},
	}

	objects, err := client.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	paths := make([]string, 0, len(objects))
	for _, obj := range objects {
		paths = append(paths, obj.Path)
	}
	return paths, nil
}

// uidFromPath is the inverse of objectPath.
func uidFromPath(path string) string {
	name := path[strings.LastIndex(path, "/")+1:]
	return strings.TrimSuffix(name, ".ics") + "@medremind"
}
