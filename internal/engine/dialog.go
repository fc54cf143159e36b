package engine

import (
	"time"

	"github.com/medikart/storefront/internal/domain"
)

// DialogState is the auto-presentation state machine state.
type DialogState int

const (
	DialogIdle DialogState = iota
	DialogOpen
	DialogSuppressed
)

func (s DialogState) String() string {
	switch s {
	case DialogIdle:
		return "idle"
	case DialogOpen:
		return "dialog_open"
	case DialogSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// DialogEvent is the present-dialog side effect handed to the UI layer.
type DialogEvent struct {
	NotificationID string
	RequestID      string
	ProductName    string
	PharmacyName   string
}

// DismissReason distinguishes the user paths that close the dialog. All
// three behave identically.
type DismissReason string

const (
	DismissClosed            DismissReason = "closed"
	DismissContinueBrowsing  DismissReason = "continue_browsing"
	DismissRecoveryCompleted DismissReason = "recovery_completed"
)

// dialogController guards the expired-request recovery dialog: at most one
// instance live at a time, at most one presentation per notification until
// it is explicitly dismissed, however often the feed re-returns it.
//
// The embedding engine's lock serializes all calls.
type dialogController struct {
	clock       Clock
	suppression time.Duration

	state           DialogState
	presentedID     string
	suppressedUntil time.Time

	// dismissed grows for the process lifetime; a dismissed id never
	// re-triggers auto-presentation.
	dismissed map[string]struct{}
}

func newDialogController(clock Clock, suppression time.Duration) *dialogController {
	return &dialogController{
		clock:       clock,
		suppression: suppression,
		state:       DialogIdle,
		dismissed:   make(map[string]struct{}),
	}
}

// evaluate inspects a fresh notification list and returns the notification
// to present, or nil. The list is scanned in server order, no re-sorting.
func (d *dialogController) evaluate(list []domain.Notification) *domain.Notification {
	if d.state == DialogSuppressed && !d.clock.Now().Before(d.suppressedUntil) {
		d.state = DialogIdle
	}
	if d.state != DialogIdle {
		return nil
	}

	for i := range list {
		n := list[i]
		if !d.qualifies(n) {
			continue
		}
		d.state = DialogOpen
		d.presentedID = n.ID
		return &n
	}
	return nil
}

func (d *dialogController) qualifies(n domain.Notification) bool {
	if n.IsRead || n.Type != domain.NotificationPrescriptionExpired {
		return false
	}
	if _, ok := n.PrescriptionRequestID(); !ok {
		return false
	}
	if _, dismissed := d.dismissed[n.ID]; dismissed {
		return false
	}
	return true
}

// dismiss records the presented notification and enters the suppression
// window, which absorbs a poll that was already in flight with a list
// predating this dismissal.
func (d *dialogController) dismiss() (string, bool) {
	if d.state != DialogOpen {
		return "", false
	}

	id := d.presentedID
	d.dismissed[id] = struct{}{}
	d.presentedID = ""
	d.state = DialogSuppressed
	d.suppressedUntil = d.clock.Now().Add(d.suppression)
	return id, true
}

// current reports the state, resolving an elapsed suppression window.
func (d *dialogController) current() DialogState {
	if d.state == DialogSuppressed && !d.clock.Now().Before(d.suppressedUntil) {
		return DialogIdle
	}
	return d.state
}
