package daemon

import (
	"log/slog"
	"net/http"

	"github.com/google/go-github/v80/github"

	"git.home.luguber.info/inful/pagerefresh/internal/config"
	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
	"git.home.luguber.info/inful/pagerefresh/internal/logfields"
	"git.home.luguber.info/inful/pagerefresh/internal/pipeline"
)

// PushHandler turns GitHub push deliveries for the watched branch into runs.
type PushHandler struct {
	settings     func() *config.PushTriggerConfig
	trigger      func(pipeline.Trigger) bool
	errorAdapter *errors.HTTPErrorAdapter
}

// NewPushHandler reads the push trigger settings on every delivery so a
// configuration reload takes effect without re-registering the route.
func NewPushHandler(settings func() *config.PushTriggerConfig, trigger func(pipeline.Trigger) bool) *PushHandler {
	return &PushHandler{
		settings:     settings,
		trigger:      trigger,
		errorAdapter: errors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Revision string `json:"revision,omitempty"`
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	settings := h.settings()
	if settings == nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.NotFoundError("push trigger is not configured").Build())
		return
	}

	payload, err := github.ValidatePayload(r, []byte(settings.Secret))
	if err != nil {
		category := errors.CategoryValidation
		if settings.Secret != "" {
			category = errors.CategoryAuth
		}
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, category, "webhook payload rejected").Build())
		return
	}

	eventType := github.WebHookType(r)
	switch eventType {
	case "ping":
		writeJSON(w, r, http.StatusOK, WebhookResponse{Status: "pong"})
		return
	case "push":
	default:
		writeJSON(w, r, http.StatusAccepted, WebhookResponse{Status: "ignored", Reason: "event " + eventType})
		return
	}

	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, errors.WrapError(err, errors.CategoryValidation, "invalid push payload").Build())
		return
	}
	push, ok := event.(*github.PushEvent)
	if !ok {
		h.errorAdapter.WriteErrorResponse(w, r, errors.ValidationError("unexpected payload for push event").Build())
		return
	}

	want := "refs/heads/" + settings.Branch
	if push.GetRef() != want {
		writeJSON(w, r, http.StatusAccepted, WebhookResponse{Status: "ignored", Reason: "ref " + push.GetRef()})
		return
	}
	if push.GetDeleted() {
		writeJSON(w, r, http.StatusAccepted, WebhookResponse{Status: "ignored", Reason: "branch deleted"})
		return
	}

	trigger := pipeline.Trigger{
		Kind:     pipeline.TriggerPush,
		Source:   "delivery " + github.DeliveryID(r),
		Revision: push.GetAfter(),
	}
	if !h.trigger(trigger) {
		h.errorAdapter.WriteErrorResponse(w, r, errors.DaemonError("daemon is shutting down").Build())
		return
	}
	slog.Info("Push accepted", logfields.Branch(settings.Branch), logfields.Revision(trigger.Revision))
	writeJSON(w, r, http.StatusAccepted, WebhookResponse{Status: "accepted", Revision: trigger.Revision})
}
