package verification

import (
	"strings"
	"time"
)

// RequirementKind identifies one of the four credential categories tracked
// toward a professional's verified status.
type RequirementKind string

const (
	KindIdentity       RequirementKind = "identity"
	KindQualifications RequirementKind = "qualifications"
	KindInsurance      RequirementKind = "insurance"
	KindDBS            RequirementKind = "dbs"
)

// Kinds lists every requirement in display order.
var Kinds = []RequirementKind{KindIdentity, KindQualifications, KindInsurance, KindDBS}

// Valid reports whether k names a known requirement.
func (k RequirementKind) Valid() bool {
	switch k {
	case KindIdentity, KindQualifications, KindInsurance, KindDBS:
		return true
	default:
		return false
	}
}

// Status is the verification state of one requirement. The remote service
// is authoritative; the client never assigns verified or rejected itself.
type Status string

const (
	StatusNotSubmitted Status = "not_submitted"
	StatusPending      Status = "pending"
	StatusVerified     Status = "verified"
	StatusRejected     Status = "rejected"
)

// parseStatus maps the upstream's assorted status spellings onto ours.
// A record that exists but carries an unknown status is pending review,
// not absent.
func parseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "verified", "approved", "accepted", "passed":
		return StatusVerified
	case "rejected", "declined", "failed":
		return StatusRejected
	default:
		return StatusPending
	}
}

// Document is one piece of uploaded evidence inside a requirement.
type Document struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	Status      Status     `json:"status"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
	// Location is an opaque storage reference the frontend resolves to a
	// fetchable URL.
	Location string `json:"location,omitempty"`

	// Insurance extras.
	Provider  string     `json:"provider,omitempty"`
	Price     float64    `json:"price,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Requirement is the client-side view of one credential category.
type Requirement struct {
	Kind                RequirementKind `json:"kind"`
	Status              Status          `json:"status"`
	VerifiedOrUpdatedAt *time.Time      `json:"verified_or_updated_at,omitempty"`
	// Evidence holds zero or more documents for qualifications and
	// insurance. Identity and dbs track a single underlying record and
	// expose it here as a one-element slice when present.
	Evidence []Document `json:"evidence,omitempty"`
}

// State is the composite verification view assembled from the four
// requirement slices plus the remote summary.
type State struct {
	Requirements      map[RequirementKind]Requirement `json:"requirements"`
	OverallStatus     Status                          `json:"overall_status"`
	CompletionPercent int                             `json:"completion_percent"`
	RefreshedAt       time.Time                       `json:"refreshed_at"`
}

// clone returns a deep copy so callers can hold a snapshot while the
// aggregator keeps mutating its own state.
func (s State) clone() State {
	out := s
	out.Requirements = make(map[RequirementKind]Requirement, len(s.Requirements))
	for kind, req := range s.Requirements {
		if len(req.Evidence) > 0 {
			evidence := make([]Document, len(req.Evidence))
			copy(evidence, req.Evidence)
			req.Evidence = evidence
		}
		out.Requirements[kind] = req
	}
	return out
}
