package verification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/common"
)

const (
	identityPath       = "/api/professional/identity"
	dbsPath            = "/api/professional/dbs"
	qualificationsPath = "/api/professional/qualifications/evidence"
	insurancePath      = "/api/professional/insurance/coverage"
	summaryPath        = "/api/professional/verification/summary"

	identityDocumentPath = "/api/professional/identity/document"
	dbsDocumentPath      = "/api/professional/dbs/document"
)

// identityRecord and dbsRecord are the upstream's single-record shapes.
type identityRecord struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	DocumentURL string `json:"document_url"`
	FileName    string `json:"file_name"`
	UpdatedAt   string `json:"updated_at"`
}

type dbsRecord struct {
	ID            int64  `json:"id"`
	Status        string `json:"status"`
	CertificateNo string `json:"certificate_number"`
	DocumentURL   string `json:"document_url"`
	FileName      string `json:"file_name"`
	UpdatedAt     string `json:"updated_at"`
}

type evidenceItem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	DocumentURL string `json:"document_url"`
	UploadedAt  string `json:"uploaded_at"`
}

type coverageItem struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Provider    string  `json:"provider"`
	Price       float64 `json:"price"`
	Status      string  `json:"status"`
	DocumentURL string  `json:"document_url"`
	ExpiryDate  string  `json:"expiry_date"`
	UploadedAt  string  `json:"uploaded_at"`
}

type summaryPayload struct {
	OverallStatus     string          `json:"overall_status"`
	CompletionPercent *int            `json:"completion_percentage"`
	Checks            map[string]bool `json:"checks"`
}

// api wraps the marketplace verification endpoints. Every read returns the
// zero value when the upstream has no record rather than an error, so an
// absent record and a present one travel through the same path.
type api struct {
	client *apiclient.Client
}

func (a *api) fetchIdentity(ctx context.Context, token string, professionalID int64) (*identityRecord, error) {
	env, err := a.client.Get(ctx, identityPath, professionalQuery(professionalID), token)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, common.NewRemoteCallError("", err)
	}
	if !env.OK() {
		return nil, remoteFailure("identity lookup", env)
	}
	var rec identityRecord
	if err := env.DataInto(&rec); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (a *api) fetchDBS(ctx context.Context, token string, professionalID int64) (*dbsRecord, error) {
	env, err := a.client.Get(ctx, dbsPath, professionalQuery(professionalID), token)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, common.NewRemoteCallError("", err)
	}
	if !env.OK() {
		return nil, remoteFailure("dbs lookup", env)
	}
	var rec dbsRecord
	if err := env.DataInto(&rec); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (a *api) fetchQualifications(ctx context.Context, token string, professionalID int64) ([]evidenceItem, error) {
	env, err := a.client.Get(ctx, qualificationsPath, professionalQuery(professionalID), token)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, common.NewRemoteCallError("", err)
	}
	if !env.OK() {
		return nil, remoteFailure("qualifications lookup", env)
	}
	var items []evidenceItem
	if err := env.DataInto(&items); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	return items, nil
}

func (a *api) fetchInsurance(ctx context.Context, token string, professionalID int64) ([]coverageItem, error) {
	env, err := a.client.Get(ctx, insurancePath, professionalQuery(professionalID), token)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, common.NewRemoteCallError("", err)
	}
	if !env.OK() {
		return nil, remoteFailure("insurance lookup", env)
	}
	var items []coverageItem
	if err := env.DataInto(&items); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	return items, nil
}

func (a *api) fetchSummary(ctx context.Context, token string, professionalID int64) (*summaryPayload, error) {
	env, err := a.client.Get(ctx, summaryPath, professionalQuery(professionalID), token)
	if err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	if !env.OK() {
		return nil, remoteFailure("summary lookup", env)
	}
	var payload summaryPayload
	if err := env.DataInto(&payload); err != nil {
		return nil, common.NewRemoteCallError("", err)
	}
	return &payload, nil
}

// inlineDocument is the JSON body for image evidence, the file carried as
// a base64 data URL in the document field.
type inlineDocument struct {
	Token          string `json:"token"`
	ID             int64  `json:"id,omitempty"`
	ProfessionalID int64  `json:"professional_id"`
	Document       string `json:"document"`
}

// submitDocument sends one piece of evidence to path using the transport
// the classified upload calls for. It returns the upstream's message for
// user-facing feedback.
func (a *api) submitDocument(ctx context.Context, path string, token string, professionalID, recordID int64, upload *classifiedUpload) (string, error) {
	var (
		env *apiclient.Envelope
		err error
	)
	if upload.IsImage() {
		body := inlineDocument{
			Token:          token,
			ID:             recordID,
			ProfessionalID: professionalID,
			Document:       upload.DataURL(),
		}
		env, err = a.client.PostJSON(ctx, path, body, token)
	} else {
		fields := map[string]string{
			"token":           token,
			"professional_id": strconv.FormatInt(professionalID, 10),
		}
		if recordID != 0 {
			fields["id"] = strconv.FormatInt(recordID, 10)
		}
		env, err = a.client.PostMultipart(ctx, path, fields, upload.FilePart(), token)
	}
	if err != nil {
		return "", common.NewRemoteCallError(apiclient.RemoteMessage(err), err)
	}
	if !env.OK() {
		return "", remoteFailure("document upload", env)
	}
	return env.RemoteMessage(), nil
}

func professionalQuery(professionalID int64) url.Values {
	q := url.Values{}
	q.Set("professional_id", strconv.FormatInt(professionalID, 10))
	return q
}

func isNotFound(err error) bool {
	var httpErr *apiclient.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// remoteFailure turns a delivered-but-unsuccessful envelope into a typed
// remote error carrying the upstream's own message when it sent one.
func remoteFailure(action string, env *apiclient.Envelope) error {
	msg := env.RemoteMessage()
	if msg == "" {
		msg = fmt.Sprintf("%s was rejected by the marketplace service", action)
	}
	return common.NewRemoteCallError(msg, nil)
}

func parseTimestamp(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
