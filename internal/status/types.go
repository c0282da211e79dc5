// Package status defines the sync phases and outcome codes reported for a pin.
package status

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the state of a pin's sync state machine
type Phase string

const (
	// PhaseIdle means no fetch is in flight
	PhaseIdle Phase = "Idle"

	// PhaseLoading means a fetch is in flight
	PhaseLoading Phase = "Loading"
)

// Code is the outcome of the most recent sync request for a pin
type Code string

const (
	// CodeIdle means no sync has been requested yet
	CodeIdle Code = "idle"

	// CodeLoading means a sync is in progress
	CodeLoading Code = "loading"

	// CodeComplete means every photo of the page was stored
	CodeComplete Code = "complete"

	// CodeEmpty means the provider returned no photos for the page
	CodeEmpty Code = "empty"

	// CodePartial means some photos were stored and some were skipped
	CodePartial Code = "partial"

	// CodeProviderError means the search call failed
	CodeProviderError Code = "provider_error"

	// CodeStorageError means storing a photo failed and the page was abandoned
	CodeStorageError Code = "storage_error"

	// CodeCancelled means the fetch was cancelled before it finished
	CodeCancelled Code = "cancelled"
)

// Failed reports whether the code describes a request that did not finish normally
func (c Code) Failed() bool {
	switch c {
	case CodeProviderError, CodeStorageError, CodeCancelled:
		return true
	default:
		return false
	}
}

// Message returns the default human-readable text for a code
func (c Code) Message() string {
	switch c {
	case CodeIdle:
		return "No photos requested yet"
	case CodeLoading:
		return "Loading photos"
	case CodeComplete:
		return "Photos loaded"
	case CodeEmpty:
		return "No photos found for this location"
	case CodePartial:
		return "Some photos could not be downloaded"
	case CodeProviderError:
		return "The photo service is unavailable"
	case CodeStorageError:
		return "Photos could not be saved"
	case CodeCancelled:
		return "Loading was cancelled"
	default:
		return string(c)
	}
}

// SyncState is the transient sync state of one pin
type SyncState struct {
	// PinID identifies the pin; it is set by the controller
	PinID uuid.UUID `json:"pinId"`

	// Page is the page the next request will fetch; pages start at 1
	Page int `json:"page"`

	Phase   Phase  `json:"phase"`
	Status  Code   `json:"status"`
	Message string `json:"message,omitempty"`

	// Stored and Skipped count photos of the most recent request
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`

	LastAttempt   *time.Time `json:"lastAttempt,omitempty"`
	LastCompleted *time.Time `json:"lastCompleted,omitempty"`
}

// Loading reports whether a fetch is in flight
func (s SyncState) Loading() bool {
	return s.Phase == PhaseLoading
}
