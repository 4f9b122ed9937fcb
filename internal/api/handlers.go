package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-pilot/internal/batch"
	"github.com/ignite/campaign-pilot/internal/domain"
	"github.com/ignite/campaign-pilot/internal/jobqueue"
	"github.com/ignite/campaign-pilot/internal/orchestrator"
	"github.com/ignite/campaign-pilot/internal/pkg/httputil"
	"github.com/ignite/campaign-pilot/internal/service/campaign"
)

// Handlers holds the control surface's collaborators.
type Handlers struct {
	campaigns *campaign.Service
	orch      *orchestrator.Orchestrator
	queue     *jobqueue.Queue
}

// NewHandlers creates the handler set.
func NewHandlers(campaigns *campaign.Service, orch *orchestrator.Orchestrator, queue *jobqueue.Queue) *Handlers {
	return &Handlers{campaigns: campaigns, orch: orch, queue: queue}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

type createCampaignRequest struct {
	CampaignName    string   `json:"campaign_name"`
	ListIDPrefix    string   `json:"list_id_prefix"`
	Subject         string   `json:"subject"`
	SenderName      string   `json:"sender_name"`
	SenderEmail     string   `json:"sender_email"`
	TotalRecipients int64    `json:"total_recipients"`
	ExternalListIDs []string `json:"external_list_ids"`
	ExternalDraftID *string  `json:"external_draft_id,omitempty"`
	StartDate       *string  `json:"start_date,omitempty"` // RFC 3339 or YYYY-MM-DD
}

// CreateCampaign partitions and schedules a new campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.ExternalListIDs) != batch.Rounds {
		httputil.BadRequest(w, "exactly three external list ids are required")
		return
	}

	in := campaign.CreateInput{
		CampaignName:    req.CampaignName,
		ListIDPrefix:    req.ListIDPrefix,
		Subject:         req.Subject,
		SenderName:      req.SenderName,
		SenderEmail:     req.SenderEmail,
		TotalRecipients: req.TotalRecipients,
		ExternalDraftID: req.ExternalDraftID,
	}
	copy(in.ExternalListIDs[:], req.ExternalListIDs)

	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			httputil.BadRequest(w, "start_date: "+err.Error())
			return
		}
		in.StartDate = &start
	}

	schedules, err := h.campaigns.Create(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.Created(w, map[string]interface{}{"schedules": schedules})
}

// CampaignStatus returns all rounds of a campaign with jobs and logs.
func (h *Handlers) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.campaigns.Status(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"rounds": rounds})
}

// RunPreFlight triggers the pre-flight stage manually.
func (h *Handlers) RunPreFlight(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, domain.StagePreFlight)
}

// RunWrapUp triggers the wrap-up stage manually.
func (h *Handlers) RunWrapUp(w http.ResponseWriter, r *http.Request) {
	h.runStage(w, r, domain.StageWrapUp)
}

func (h *Handlers) runStage(w http.ResponseWriter, r *http.Request, stage domain.Stage) {
	res, err := h.orch.Run(r.Context(), stage, chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

type launchRequest struct {
	SkipPreflight bool `json:"skip_preflight"`
}

// Launch runs the launch composite.
func (h *Handlers) Launch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	res, err := h.orch.Launch(r.Context(), chi.URLParam(r, "id"), req.SkipPreflight)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, res)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel removes pending jobs and blocks the schedule.
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}
	if err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "cancelled"})
}

type rescheduleRequest struct {
	LaunchAt string `json:"launch_at"` // RFC 3339
}

// Reschedule moves a round to a new launch slot.
func (h *Handlers) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	launchAt, err := time.Parse(time.RFC3339, req.LaunchAt)
	if err != nil {
		httputil.BadRequest(w, "launch_at: "+err.Error())
		return
	}
	sched, err := h.campaigns.Reschedule(r.Context(), chi.URLParam(r, "id"), launchAt)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, sched)
}

// JobStatus returns the pending-job view for one schedule.
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.campaigns.JobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"jobs": jobs})
}

// FailedNotifications lists stages whose latest notification attempt failed.
func (h *Handlers) FailedNotifications(w http.ResponseWriter, r *http.Request) {
	logs, err := h.campaigns.FailedNotifications(r.Context(), 100)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"failed": logs})
}

// DeadLetters lists dead-lettered jobs awaiting operator action.
func (h *Handlers) DeadLetters(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.DeadLetters(r.Context(), 100)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"dead_letters": jobs})
}

func (h *Handlers) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrScheduleNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, campaign.ErrInvalidInput),
		errors.Is(err, campaign.ErrNotCancellable),
		errors.Is(err, campaign.ErrNotReschedulable):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, domain.ErrDuplicateSchedule):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, orchestrator.ErrNotReady),
		errors.Is(err, orchestrator.ErrStageNotApplicable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrScheduleTerminal):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, orchestrator.ErrLockHeld):
		httputil.Conflict(w, "another operation holds the schedule lock")
	default:
		log.Printf("[API] Downstream error: %v", err)
		httputil.BadGateway(w, err.Error())
	}
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}
