package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"action-gateway/middleware/idempotency/application"
	"action-gateway/middleware/idempotency/domain"

	"github.com/google/uuid"
)

const actionScheduleDemo = "schedule_demo"

type scheduleDemoInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	TimeWindow string `json:"time_window"`
	Notes      string `json:"notes,omitempty"`
}

type demoCreated struct {
	TicketID     string `json:"ticket_id"`
	CalendarLink string `json:"calendar_link"`
}

type demoPending struct {
	Status    string `json:"status"`
	ReviewURL string `json:"review_url"`
	TicketID  string `json:"ticket_id"`
}

type demoRecord struct {
	scheduleDemoInput
	demoCreated
	CreatedAt time.Time
}

// demoRegistry guarda os agendamentos confirmados do processo.
type demoRegistry struct {
	mu    sync.Mutex
	items map[string]demoRecord
}

func newDemoRegistry() *demoRegistry {
	return &demoRegistry{items: make(map[string]demoRecord)}
}

func (d *demoRegistry) add(rec demoRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[rec.TicketID] = rec
}

func (d *demoRegistry) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func newTicketID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

func (s *Server) handleScheduleDemo(w http.ResponseWriter, r *http.Request) {
	key, ok := idempotencyKey(w, r, true)
	if !ok {
		return
	}

	var in scheduleDemoInput
	doc, ok := decodeBody(w, r, s.schemas.scheduleDemo, "ScheduleDemoInput", &in)
	if !ok {
		return
	}

	s.runIdempotent(w, r, application.Request{
		Action:  actionScheduleDemo,
		Key:     key,
		Payload: doc,
	}, func(context.Context) (domain.Response, error) {
		return s.scheduleDemo(in)
	})
}

// scheduleDemo é a regra de negócio. Uma fração configurável dos pedidos vai
// para revisão humana (202); o resto é confirmado na hora (201).
func (s *Server) scheduleDemo(in scheduleDemoInput) (domain.Response, error) {
	ticketID := newTicketID("DEMO")

	if s.rand() < s.cfg.Demo.ReviewRate {
		s.logger.Info("demo pending review", "type", "demo", "ticket_id", ticketID)
		return jsonResponse(http.StatusAccepted, demoPending{
			Status:    "pending",
			ReviewURL: "https://demo.example.com/review/" + ticketID,
			TicketID:  ticketID,
		}, nil)
	}

	created := demoCreated{
		TicketID:     ticketID,
		CalendarLink: "https://calendly.com/demo/" + ticketID,
	}
	s.demos.add(demoRecord{scheduleDemoInput: in, demoCreated: created, CreatedAt: s.now()})
	s.logger.Info("demo created", "type", "demo", "ticket_id", ticketID, "email", maskEmail(in.Email))

	return jsonResponse(http.StatusCreated, created, map[string]string{
		"Location": strings.TrimRight(s.cfg.BaseURL, "/") + "/demos/" + ticketID,
	})
}

func maskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return "***"
	}
	local := email[:at]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + email[at:]
}
