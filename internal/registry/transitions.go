package registry

import (
	"fmt"
	"time"

	"github.com/qtosh1/botlyhub/internal/models"
)

// runtimeTransitions lists the explicit start/stop moves. Verification moves are
// handled by verifiedState and may start from any status.
var runtimeTransitions = map[models.ConnectionStatus][]models.ConnectionStatus{
	models.ConnectionActive:  {models.ConnectionStopped},
	models.ConnectionStopped: {models.ConnectionActive, models.ConnectionBooting},
	models.ConnectionBooting: {models.ConnectionActive, models.ConnectionStopped},
}

// RuntimeTarget reports whether next is a status a caller may request directly.
func RuntimeTarget(next models.ConnectionStatus) bool {
	switch next {
	case models.ConnectionActive, models.ConnectionStopped, models.ConnectionBooting:
		return true
	}
	return false
}

// CanTransition reports whether a runtime move from -> to is allowed.
func CanTransition(from, to models.ConnectionStatus) bool {
	for _, allowed := range runtimeTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// verifiedState returns the state after a verification attempt.
func verifiedState(cur models.ConnectionState, passed bool, now time.Time) models.ConnectionState {
	next := cur
	checked := now
	next.LastCheckAt = &checked
	if passed {
		next.IsAdminVerified = true
		next.Status = models.ConnectionActive
		if cur.Status != models.ConnectionActive || cur.RuntimeID == nil {
			next.RuntimeID = newRuntimeID()
			next.UptimeStart = &checked
		}
		return next
	}
	next.IsAdminVerified = false
	next.Status = models.ConnectionMissingPermissions
	next.RuntimeID = nil
	next.UptimeStart = nil
	return next
}

// runtimeState returns the state after a start/stop move. The caller has already
// checked CanTransition and the verification guard.
func runtimeState(cur models.ConnectionState, to models.ConnectionStatus, now time.Time) models.ConnectionState {
	next := cur
	next.Status = to
	switch to {
	case models.ConnectionActive:
		if cur.RuntimeID == nil {
			next.RuntimeID = newRuntimeID()
		}
		if cur.UptimeStart == nil || cur.Status != models.ConnectionActive {
			started := now
			next.UptimeStart = &started
		}
	case models.ConnectionBooting:
		next.RuntimeID = newRuntimeID()
		next.UptimeStart = nil
	case models.ConnectionStopped:
		next.RuntimeID = nil
		next.UptimeStart = nil
	}
	return next
}

// CheckInvariant validates the verification/status relationship of a state.
func CheckInvariant(s models.ConnectionState) error {
	if !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if s.Status.Running() && !s.IsAdminVerified {
		return fmt.Errorf("status %s requires a verified connection", s.Status)
	}
	if (s.Status == models.ConnectionPending || s.Status == models.ConnectionMissingPermissions) && s.IsAdminVerified {
		return fmt.Errorf("status %s cannot carry a verified flag", s.Status)
	}
	return nil
}
