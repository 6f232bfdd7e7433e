package services

import (
	"time"

	"medidispatch/internal/models"
	"medidispatch/internal/utils"
)

const statusDispatched = "dispatched"

// tracked is a call or transport seen through the parts of the lifecycle
// both share. Exactly one of the two pointers is set.
type tracked struct {
	call      *models.Call
	transport *models.Transport
}

func (t *tracked) kind() models.EntityType {
	if t.call != nil {
		return models.EntityTypeCall
	}
	return models.EntityTypeTransport
}

func (t *tracked) id() string {
	if t.call != nil {
		return t.call.ID
	}
	return t.transport.ID
}

func (t *tracked) status() string {
	if t.call != nil {
		return string(t.call.Status)
	}
	return string(t.transport.Status)
}

func (t *tracked) knows(status string) bool {
	if t.call != nil {
		return models.CallStatus(status).Valid()
	}
	return models.TransportStatus(status).Valid()
}

func (t *tracked) canTransitionTo(next string) bool {
	if t.call != nil {
		return t.call.Status.CanTransitionTo(models.CallStatus(next))
	}
	return t.transport.Status.CanTransitionTo(models.TransportStatus(next))
}

func (t *tracked) isTerminal() bool {
	if t.call != nil {
		return t.call.Status.IsTerminal()
	}
	return t.transport.Status.IsTerminal()
}

func (t *tracked) timeline() *[]models.TimelineEntry {
	if t.call != nil {
		return &t.call.Timeline
	}
	return &t.transport.Timeline
}

func (t *tracked) dispatch() *models.DispatchInfo {
	if t.call != nil {
		return &t.call.Dispatch
	}
	return &t.transport.Dispatch
}

func (t *tracked) acknowledgement() **models.Acknowledgement {
	if t.call != nil {
		return &t.call.Acknowledgement
	}
	return &t.transport.Acknowledgement
}

func (t *tracked) escalation() *models.EscalationState {
	if t.call != nil {
		return &t.call.Escalation
	}
	return &t.transport.Escalation
}

// priority drives both SLA and matching urgency.
func (t *tracked) priority() models.Severity {
	if t.call != nil {
		return t.call.Emergency.Priority
	}
	return t.transport.Priority
}

func (t *tracked) slaStart() time.Time {
	if t.call != nil {
		return t.call.CreatedAt
	}
	return t.transport.SLAStart()
}

func (t *tracked) pickup() models.Location {
	if t.call != nil {
		return t.call.Caller.Location
	}
	return t.transport.Origin.Location
}

func (t *tracked) destination() (models.Location, bool) {
	if t.call != nil {
		if d := t.call.Destination; d != nil && d.Location != nil && d.Location.HasCoordinates() {
			return *d.Location, true
		}
		return models.Location{}, false
	}
	loc := t.transport.Destination.Location
	return loc, loc.HasCoordinates()
}

func (t *tracked) matchRequest(actor string) MatchRequest {
	req := MatchRequest{
		EntityType: t.kind(),
		EntityID:   t.id(),
		Pickup:     t.pickup(),
		Urgency:    t.priority(),
		Actor:      actor,
	}
	if t.call != nil {
		req.Requirements = t.call.Requirements
		req.PreferredType = t.call.PreferredVehicleType
	} else {
		req.Requirements = t.transport.Requirements
		req.PreferredType = t.transport.PreferredVehicleType
	}
	return req
}

func (t *tracked) setOutcome(outcome string) {
	if outcome == "" {
		return
	}
	if t.call != nil {
		t.call.Outcome = outcome
	} else {
		t.transport.Outcome = outcome
	}
}

func (t *tracked) touch(now time.Time) {
	if t.call != nil {
		t.call.UpdatedAt = now
	} else {
		t.transport.UpdatedAt = now
	}
}

// applyStatus sets the new status, stamps its timestamp and appends the
// timeline entry. The caller has already checked the transition.
func (t *tracked) applyStatus(next, actor, note, requestID string, now time.Time) {
	from := t.status()
	if t.call != nil {
		t.call.Status = models.CallStatus(next)
	} else {
		t.transport.Status = models.TransportStatus(next)
	}
	t.dispatch().Stamp(next, now)
	t.appendEntry(models.TimelineEntry{
		Kind:       models.TimelineKindStatus,
		Status:     next,
		FromStatus: from,
		Timestamp:  now,
		Actor:      actor,
		Note:       note,
		RequestID:  requestID,
	})
	t.touch(now)
}

func (t *tracked) appendEntry(e models.TimelineEntry) {
	tl := t.timeline()
	*tl = append(*tl, e)
}

func (t *tracked) appendVitals(v models.VitalSigns) {
	if t.call != nil {
		t.call.VitalSigns = append(t.call.VitalSigns, v)
	} else {
		t.transport.VitalSigns = append(t.transport.VitalSigns, v)
	}
}

func (t *tracked) appendIntervention(i models.Intervention) {
	if t.call != nil {
		t.call.Interventions = append(t.call.Interventions, i)
	} else {
		t.transport.Interventions = append(t.transport.Interventions, i)
	}
}

func (t *tracked) appendMedication(m models.Medication) {
	if t.call != nil {
		t.call.Medications = append(t.call.Medications, m)
	} else {
		t.transport.Medications = append(t.transport.Medications, m)
	}
}

// minutesBetween reports the minutes between two stamped instants, or zero
// when either is missing.
func minutesBetween(from, to *time.Time) float64 {
	if from == nil || to == nil {
		return 0
	}
	return utils.MinutesBetween(*from, *to)
}
