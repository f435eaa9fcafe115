package verification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firesafely/marketplace/internal/alerts"
	"github.com/firesafely/marketplace/internal/session"
	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/async"
	"github.com/firesafely/marketplace/pkg/common"
	"github.com/firesafely/marketplace/pkg/logger"
)

// Aggregator assembles the composite verification state for one
// professional from four independent credential resources plus the remote
// summary, and mediates evidence uploads against them.
type Aggregator struct {
	api      *api
	sessions session.Store
	notifier alerts.Notifier

	mu             sync.RWMutex
	identity       *identityRecord
	dbs            *dbsRecord
	qualifications []evidenceItem
	insurance      []coverageItem
	summary        *summaryPayload
	state          State
}

func NewAggregator(client *apiclient.Client, sessions session.Store, notifier alerts.Notifier) *Aggregator {
	if notifier == nil {
		notifier = alerts.LogNotifier{}
	}
	return &Aggregator{
		api:      &api{client: client},
		sessions: sessions,
		notifier: notifier,
		state:    State{Requirements: emptyRequirements()},
	}
}

// RefreshAll reloads all four requirement slices and the summary
// concurrently. Every read settles independently: a failed slice resolves
// to absent and is logged, never raised. Only a missing session fails the
// call, before any network traffic.
func (a *Aggregator) RefreshAll(ctx context.Context) (State, error) {
	token, professionalID, err := a.credentials(ctx)
	if err != nil {
		return State{}, err
	}

	slices := []struct {
		name string
		load func(context.Context, string, int64) error
	}{
		{"identity", a.loadIdentity},
		{"dbs", a.loadDBS},
		{"qualifications", a.loadQualifications},
		{"insurance", a.loadInsurance},
		{"summary", a.loadSummary},
	}
	tasks := make([]async.Task[struct{}], len(slices))
	for i := range slices {
		load := slices[i].load
		tasks[i] = func(ctx context.Context) (struct{}, error) {
			return struct{}{}, load(ctx, token, professionalID)
		}
	}
	for i, outcome := range async.Settle(ctx, tasks...) {
		if outcome.Err != nil {
			logger.WarnContext(ctx, "verification slice load failed",
				zap.String("slice", slices[i].name),
				zap.Error(outcome.Err))
		}
	}

	a.mu.Lock()
	a.recomputeLocked()
	state := a.state.clone()
	a.mu.Unlock()
	return state, nil
}

// RefreshIdentity reloads only the identity slice. Like all slice reads
// the failure is logged and the slice resolves to absent.
func (a *Aggregator) RefreshIdentity(ctx context.Context) (State, error) {
	return a.refreshSlice(ctx, KindIdentity)
}

func (a *Aggregator) RefreshDBS(ctx context.Context) (State, error) {
	return a.refreshSlice(ctx, KindDBS)
}

func (a *Aggregator) RefreshQualifications(ctx context.Context) (State, error) {
	return a.refreshSlice(ctx, KindQualifications)
}

func (a *Aggregator) RefreshInsurance(ctx context.Context) (State, error) {
	return a.refreshSlice(ctx, KindInsurance)
}

func (a *Aggregator) refreshSlice(ctx context.Context, kind RequirementKind) (State, error) {
	token, professionalID, err := a.credentials(ctx)
	if err != nil {
		return State{}, err
	}
	a.reloadSlice(ctx, kind, token, professionalID)
	a.mu.Lock()
	a.recomputeLocked()
	state := a.state.clone()
	a.mu.Unlock()
	return state, nil
}

func (a *Aggregator) reloadSlice(ctx context.Context, kind RequirementKind, token string, professionalID int64) {
	var err error
	switch kind {
	case KindIdentity:
		err = a.loadIdentity(ctx, token, professionalID)
	case KindDBS:
		err = a.loadDBS(ctx, token, professionalID)
	case KindQualifications:
		err = a.loadQualifications(ctx, token, professionalID)
	case KindInsurance:
		err = a.loadInsurance(ctx, token, professionalID)
	}
	if err != nil {
		logger.WarnContext(ctx, "verification slice load failed",
			zap.String("slice", string(kind)),
			zap.Error(err))
	}
}

// State returns a snapshot of the last computed composite state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state.clone()
}

// SubmitEvidence uploads one file for the given requirement. Identity and
// dbs updates require an existing remote record; qualifications may create
// a new evidence item when targetID is zero or update an existing one.
// Every gate runs before any network call. On success the affected slice
// is reloaded from the server so the state reflects confirmed data rather
// than an optimistic guess.
func (a *Aggregator) SubmitEvidence(ctx context.Context, kind RequirementKind, targetID int64, upload Upload) (State, error) {
	if !kind.Valid() {
		return State{}, common.NewBadRequestError(fmt.Sprintf("unknown requirement %q", kind), nil)
	}
	if kind == KindInsurance {
		return State{}, common.NewBadRequestError("insurance coverage is managed by the marketplace and cannot be uploaded here", nil)
	}
	token, professionalID, err := a.credentials(ctx)
	if err != nil {
		return State{}, err
	}
	classified, err := classifyUpload(upload)
	if err != nil {
		return State{}, err
	}

	var path string
	recordID := targetID
	switch kind {
	case KindIdentity:
		path = identityDocumentPath
		if recordID, err = a.existingRecordID(KindIdentity); err != nil {
			return State{}, err
		}
	case KindDBS:
		path = dbsDocumentPath
		if recordID, err = a.existingRecordID(KindDBS); err != nil {
			return State{}, err
		}
	case KindQualifications:
		path = qualificationsPath
	}

	message, err := a.api.submitDocument(ctx, path, token, professionalID, recordID, classified)
	if err != nil {
		a.notifier.Notify(ctx, alerts.LevelError, alertMessage(err))
		return State{}, err
	}
	if message == "" {
		message = "Document uploaded"
	}
	a.notifier.Notify(ctx, alerts.LevelSuccess, message)

	a.reloadSlice(ctx, kind, token, professionalID)
	a.mu.Lock()
	a.recomputeLocked()
	state := a.state.clone()
	a.mu.Unlock()
	return state, nil
}

// existingRecordID enforces the update-only rule for single-record
// requirements using the last loaded state.
func (a *Aggregator) existingRecordID(kind RequirementKind) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch kind {
	case KindIdentity:
		if a.identity != nil {
			return a.identity.ID, nil
		}
	case KindDBS:
		if a.dbs != nil {
			return a.dbs.ID, nil
		}
	}
	return 0, common.NewMissingRecordError(fmt.Sprintf("no %s record exists to update", kind))
}

// alertMessage picks the user-facing text for a failed upload: the typed
// error's message already carries the remote-provided text when the
// upstream sent one.
func alertMessage(err error) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "document upload failed, please try again"
}

func (a *Aggregator) credentials(ctx context.Context) (string, int64, error) {
	token, err := a.sessions.Token(ctx)
	if err != nil {
		return "", 0, err
	}
	professionalID, err := a.sessions.ProfessionalID(ctx)
	if err != nil {
		return "", 0, err
	}
	return token, professionalID, nil
}

func (a *Aggregator) loadIdentity(ctx context.Context, token string, professionalID int64) error {
	rec, err := a.api.fetchIdentity(ctx, token, professionalID)
	a.mu.Lock()
	if err != nil {
		a.identity = nil
	} else {
		a.identity = rec
	}
	a.mu.Unlock()
	return err
}

func (a *Aggregator) loadDBS(ctx context.Context, token string, professionalID int64) error {
	rec, err := a.api.fetchDBS(ctx, token, professionalID)
	a.mu.Lock()
	if err != nil {
		a.dbs = nil
	} else {
		a.dbs = rec
	}
	a.mu.Unlock()
	return err
}

func (a *Aggregator) loadQualifications(ctx context.Context, token string, professionalID int64) error {
	items, err := a.api.fetchQualifications(ctx, token, professionalID)
	a.mu.Lock()
	if err != nil {
		a.qualifications = nil
	} else {
		a.qualifications = items
	}
	a.mu.Unlock()
	return err
}

func (a *Aggregator) loadInsurance(ctx context.Context, token string, professionalID int64) error {
	items, err := a.api.fetchInsurance(ctx, token, professionalID)
	a.mu.Lock()
	if err != nil {
		a.insurance = nil
	} else {
		a.insurance = items
	}
	a.mu.Unlock()
	return err
}

func (a *Aggregator) loadSummary(ctx context.Context, token string, professionalID int64) error {
	payload, err := a.api.fetchSummary(ctx, token, professionalID)
	a.mu.Lock()
	if err != nil {
		a.summary = nil
	} else {
		a.summary = payload
	}
	a.mu.Unlock()
	return err
}

// recomputeLocked rebuilds the composite state from the raw slices. The
// remote summary's checks map takes precedence per requirement; any
// requirement it omits falls back to deriving from the slice's own data.
// Callers must hold the write lock.
func (a *Aggregator) recomputeLocked() {
	requirements := map[RequirementKind]Requirement{
		KindIdentity:       a.deriveIdentity(),
		KindDBS:            a.deriveDBS(),
		KindQualifications: deriveFromItems(KindQualifications, qualificationDocuments(a.qualifications)),
		KindInsurance:      deriveFromItems(KindInsurance, insuranceDocuments(a.insurance)),
	}
	if a.summary != nil {
		for kind, req := range requirements {
			passed, ok := a.summary.Checks[string(kind)]
			if !ok {
				continue
			}
			// a requirement with no backing record stays not_submitted
			// no matter what the summary claims
			switch {
			case passed && a.hasRecordLocked(kind):
				req.Status = StatusVerified
			case !passed && req.Status == StatusVerified:
				req.Status = StatusPending
			}
			requirements[kind] = req
		}
	}

	verified := 0
	for _, req := range requirements {
		if req.Status == StatusVerified {
			verified++
		}
	}
	completion := verified * 100 / len(Kinds)
	overall := deriveOverall(requirements)
	if a.summary != nil {
		if a.summary.CompletionPercent != nil {
			completion = *a.summary.CompletionPercent
		}
		if a.summary.OverallStatus != "" {
			overall = parseStatus(a.summary.OverallStatus)
		}
	}

	a.state = State{
		Requirements:      requirements,
		OverallStatus:     overall,
		CompletionPercent: completion,
		RefreshedAt:       time.Now().UTC(),
	}
}

// hasRecordLocked reports whether the requirement's slice resolved to a
// backing remote record on the last load. Callers must hold the lock.
func (a *Aggregator) hasRecordLocked(kind RequirementKind) bool {
	switch kind {
	case KindIdentity:
		return a.identity != nil
	case KindDBS:
		return a.dbs != nil
	case KindQualifications:
		return len(a.qualifications) > 0
	case KindInsurance:
		return len(a.insurance) > 0
	default:
		return false
	}
}

func (a *Aggregator) deriveIdentity() Requirement {
	req := Requirement{Kind: KindIdentity, Status: StatusNotSubmitted}
	if a.identity == nil {
		return req
	}
	req.Status = parseStatus(a.identity.Status)
	req.VerifiedOrUpdatedAt = parseTimestamp(a.identity.UpdatedAt)
	req.Evidence = []Document{{
		ID:          a.identity.ID,
		DisplayName: a.identity.FileName,
		Status:      req.Status,
		UploadedAt:  parseTimestamp(a.identity.UpdatedAt),
		Location:    a.identity.DocumentURL,
	}}
	return req
}

func (a *Aggregator) deriveDBS() Requirement {
	req := Requirement{Kind: KindDBS, Status: StatusNotSubmitted}
	if a.dbs == nil {
		return req
	}
	req.Status = parseStatus(a.dbs.Status)
	req.VerifiedOrUpdatedAt = parseTimestamp(a.dbs.UpdatedAt)
	req.Evidence = []Document{{
		ID:          a.dbs.ID,
		DisplayName: a.dbs.FileName,
		Status:      req.Status,
		UploadedAt:  parseTimestamp(a.dbs.UpdatedAt),
		Location:    a.dbs.DocumentURL,
	}}
	return req
}

// deriveFromItems applies the list rule: verified when any item is
// verified, pending when items exist but none are, not_submitted when the
// list is empty.
func deriveFromItems(kind RequirementKind, evidence []Document) Requirement {
	req := Requirement{Kind: kind, Status: StatusNotSubmitted, Evidence: evidence}
	for _, doc := range evidence {
		if doc.Status == StatusVerified {
			req.Status = StatusVerified
			if req.VerifiedOrUpdatedAt == nil {
				req.VerifiedOrUpdatedAt = doc.UploadedAt
			}
			return req
		}
	}
	if len(evidence) > 0 {
		req.Status = StatusPending
	}
	return req
}

func qualificationDocuments(items []evidenceItem) []Document {
	if len(items) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(items))
	for _, it := range items {
		docs = append(docs, Document{
			ID:          it.ID,
			DisplayName: it.Name,
			Status:      parseStatus(it.Status),
			UploadedAt:  parseTimestamp(it.UploadedAt),
			Location:    it.DocumentURL,
		})
	}
	return docs
}

func insuranceDocuments(items []coverageItem) []Document {
	if len(items) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(items))
	for _, it := range items {
		docs = append(docs, Document{
			ID:          it.ID,
			DisplayName: it.Name,
			Status:      parseStatus(it.Status),
			UploadedAt:  parseTimestamp(it.UploadedAt),
			Location:    it.DocumentURL,
			Provider:    it.Provider,
			Price:       it.Price,
			ExpiresAt:   parseTimestamp(it.ExpiryDate),
		})
	}
	return docs
}

func deriveOverall(requirements map[RequirementKind]Requirement) Status {
	verified, submitted := 0, 0
	for _, req := range requirements {
		switch req.Status {
		case StatusVerified:
			verified++
			submitted++
		case StatusRejected:
			return StatusRejected
		case StatusPending:
			submitted++
		}
	}
	switch {
	case verified == len(Kinds):
		return StatusVerified
	case submitted == 0:
		return StatusNotSubmitted
	default:
		return StatusPending
	}
}

func emptyRequirements() map[RequirementKind]Requirement {
	out := make(map[RequirementKind]Requirement, len(Kinds))
	for _, kind := range Kinds {
		out[kind] = Requirement{Kind: kind, Status: StatusNotSubmitted}
	}
	return out
}
