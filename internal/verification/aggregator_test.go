package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firesafely/marketplace/internal/alerts"
	"github.com/firesafely/marketplace/internal/session"
	"github.com/firesafely/marketplace/pkg/apiclient"
	"github.com/firesafely/marketplace/pkg/common"
)

// fakeMarketplace stands in for the upstream service. Each endpoint's
// response is configurable and every request is counted.
type fakeMarketplace struct {
	t *testing.T

	mu       sync.Mutex
	requests map[string]int
	handlers map[string]http.HandlerFunc
	uploads  []*http.Request
	bodies   []map[string]any
}

func newFakeMarketplace(t *testing.T) *fakeMarketplace {
	return &fakeMarketplace{
		t:        t,
		requests: make(map[string]int),
		handlers: make(map[string]http.HandlerFunc),
	}
}

func (f *fakeMarketplace) route(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

func (f *fakeMarketplace) respond(method, path string, status int, body any) {
	f.route(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

func (f *fakeMarketplace) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.requests[key]++
	handler := f.handlers[key]
	if r.Method == http.MethodPost {
		clone := r.Clone(r.Context())
		f.uploads = append(f.uploads, clone)
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				f.bodies = append(f.bodies, body)
			}
		} else if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			require.NoError(f.t, r.ParseMultipartForm(32<<20))
			clone.MultipartForm = r.MultipartForm
		}
	}
	f.mu.Unlock()

	if handler == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"error":"not found"}`)
		return
	}
	handler(w, r)
}

func (f *fakeMarketplace) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method+" "+path]
}

func (f *fakeMarketplace) totalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.requests {
		total += n
	}
	return total
}

func envelope(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

type capturedAlert struct {
	level   alerts.Level
	message string
}

func newTestAggregator(t *testing.T, fake *fakeMarketplace, store session.Store) (*Aggregator, *[]capturedAlert) {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	var captured []capturedAlert
	var mu sync.Mutex
	notifier := alerts.Func(func(ctx context.Context, level alerts.Level, message string) {
		mu.Lock()
		captured = append(captured, capturedAlert{level, message})
		mu.Unlock()
	})

	client := apiclient.NewClient(server.URL, 5*time.Second)
	return NewAggregator(client, store, notifier), &captured
}

func authedStore() session.Store {
	return session.Static{SessionToken: "token-123", Professional: 42}
}

func healthySlices(fake *fakeMarketplace) {
	fake.respond(http.MethodGet, identityPath, http.StatusOK, envelope(map[string]any{
		"id": 11, "status": "verified", "file_name": "passport.png", "updated_at": "2026-05-01T10:00:00Z",
	}))
	fake.respond(http.MethodGet, dbsPath, http.StatusOK, envelope(map[string]any{
		"id": 22, "status": "pending", "file_name": "dbs.pdf",
	}))
	fake.respond(http.MethodGet, qualificationsPath, http.StatusOK, envelope([]map[string]any{
		{"id": 31, "name": "Fire Risk Assessor", "status": "verified", "uploaded_at": "2026-04-20T08:00:00Z"},
		{"id": 32, "name": "NEBOSH Certificate", "status": "pending"},
	}))
	fake.respond(http.MethodGet, insurancePath, http.StatusOK, envelope([]map[string]any{
		{"id": 41, "name": "Public Liability", "provider": "Acme Mutual", "price": 120.50, "status": "pending", "expiry_date": "2027-01-01"},
	}))
	fake.respond(http.MethodGet, summaryPath, http.StatusOK, envelope(map[string]any{
		"overall_status":        "pending",
		"completion_percentage": 50,
		"checks": map[string]bool{
			"identity": true, "dbs": false, "qualifications": true, "insurance": false,
		},
	}))
}

func TestRefreshAllMergesSlicesWithSummary(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	agg, _ := newTestAggregator(t, fake, authedStore())

	state, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, state.Requirements[KindIdentity].Status)
	assert.Equal(t, StatusPending, state.Requirements[KindDBS].Status)
	assert.Equal(t, StatusVerified, state.Requirements[KindQualifications].Status)
	assert.Equal(t, StatusPending, state.Requirements[KindInsurance].Status)
	assert.Equal(t, 50, state.CompletionPercent)
	assert.Equal(t, StatusPending, state.OverallStatus)

	quals := state.Requirements[KindQualifications].Evidence
	require.Len(t, quals, 2)
	assert.Equal(t, "Fire Risk Assessor", quals[0].DisplayName)

	insurance := state.Requirements[KindInsurance].Evidence
	require.Len(t, insurance, 1)
	assert.Equal(t, "Acme Mutual", insurance[0].Provider)
	assert.InDelta(t, 120.50, insurance[0].Price, 0.001)

	for _, path := range []string{identityPath, dbsPath, qualificationsPath, insurancePath, summaryPath} {
		assert.Equal(t, 1, fake.count(http.MethodGet, path), path)
	}
}

func TestRefreshAllDerivesWhenSummaryFails(t *testing.T) {
	fake := newFakeMarketplace(t)
	fake.respond(http.MethodGet, identityPath, http.StatusOK, envelope(map[string]any{
		"id": 11, "status": "verified",
	}))
	// dbs has never been submitted
	fake.respond(http.MethodGet, qualificationsPath, http.StatusOK, envelope([]map[string]any{
		{"id": 31, "name": "Fire Door Inspection", "status": "verified"},
	}))
	fake.respond(http.MethodGet, insurancePath, http.StatusOK, envelope([]map[string]any{}))
	fake.respond(http.MethodGet, summaryPath, http.StatusInternalServerError, map[string]any{
		"success": false, "error": "summary unavailable",
	})
	agg, _ := newTestAggregator(t, fake, authedStore())

	state, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, state.Requirements[KindIdentity].Status)
	assert.Equal(t, StatusNotSubmitted, state.Requirements[KindDBS].Status)
	assert.Equal(t, StatusVerified, state.Requirements[KindQualifications].Status)
	assert.Equal(t, StatusNotSubmitted, state.Requirements[KindInsurance].Status)
	assert.Equal(t, 50, state.CompletionPercent)
}

func TestRefreshAllIsolatesSliceFailures(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.respond(http.MethodGet, identityPath, http.StatusInternalServerError, map[string]any{
		"success": false, "error": "boom",
	})
	agg, _ := newTestAggregator(t, fake, authedStore())

	state, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusNotSubmitted, state.Requirements[KindIdentity].Status)
	assert.Equal(t, StatusVerified, state.Requirements[KindQualifications].Status)
	assert.NotEmpty(t, state.Requirements[KindInsurance].Evidence)
}

func TestRefreshAllSummaryChecksTakePrecedence(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	// slice says pending, summary check passes anyway
	fake.respond(http.MethodGet, dbsPath, http.StatusOK, envelope(map[string]any{
		"id": 22, "status": "pending",
	}))
	fake.respond(http.MethodGet, summaryPath, http.StatusOK, envelope(map[string]any{
		"checks": map[string]bool{"dbs": true, "identity": false},
	}))
	agg, _ := newTestAggregator(t, fake, authedStore())

	state, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, state.Requirements[KindDBS].Status)
	assert.Equal(t, StatusPending, state.Requirements[KindIdentity].Status)
	// qualifications omitted from checks, falls back to its own items
	assert.Equal(t, StatusVerified, state.Requirements[KindQualifications].Status)
}

func TestSummaryCheckCannotPromoteAbsentRequirement(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.route(http.MethodGet, identityPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	// summary insists identity passed even though no record exists
	fake.respond(http.MethodGet, summaryPath, http.StatusOK, envelope(map[string]any{
		"checks": map[string]bool{"identity": true, "qualifications": true},
	}))
	agg, _ := newTestAggregator(t, fake, authedStore())

	state, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusNotSubmitted, state.Requirements[KindIdentity].Status)
	assert.Empty(t, state.Requirements[KindIdentity].Evidence)
	assert.Equal(t, StatusVerified, state.Requirements[KindQualifications].Status)
	assert.Equal(t, 25, state.CompletionPercent)
}

func TestRefreshAllRequiresSession(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	agg, _ := newTestAggregator(t, fake, session.Static{})

	_, err := agg.RefreshAll(context.Background())
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
	assert.Zero(t, fake.totalRequests())
}

func TestSubmitEvidenceImageGoesInline(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.respond(http.MethodPost, identityDocumentPath, http.StatusOK, map[string]any{
		"success": true, "message": "Identity document updated",
	})
	agg, captured := newTestAggregator(t, fake, authedStore())

	_, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	state, err := agg.SubmitEvidence(context.Background(), KindIdentity, 0, Upload{
		FileName:    "passport.png",
		ContentType: "image/png",
		Content:     []byte("not-a-real-png"),
	})
	require.NoError(t, err)

	require.Equal(t, 1, fake.count(http.MethodPost, identityDocumentPath))
	require.Len(t, fake.bodies, 1)
	body := fake.bodies[0]
	assert.Equal(t, "token-123", body["token"])
	assert.Equal(t, float64(11), body["id"])
	assert.Equal(t, float64(42), body["professional_id"])
	document, _ := body["document"].(string)
	assert.True(t, strings.HasPrefix(document, "data:image/png;base64,"), "document should be a data URL")

	// slice reloaded from the server after the upload
	assert.Equal(t, 2, fake.count(http.MethodGet, identityPath))
	assert.Equal(t, StatusVerified, state.Requirements[KindIdentity].Status)

	require.NotEmpty(t, *captured)
	last := (*captured)[len(*captured)-1]
	assert.Equal(t, alerts.LevelSuccess, last.level)
	assert.Equal(t, "Identity document updated", last.message)
}

func TestSubmitEvidenceDocumentGoesMultipart(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.respond(http.MethodPost, qualificationsPath, http.StatusOK, map[string]any{"success": "ok"})
	agg, _ := newTestAggregator(t, fake, authedStore())

	_, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)

	_, err = agg.SubmitEvidence(context.Background(), KindQualifications, 31, Upload{
		FileName:    "certificate.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.7 fake"),
	})
	require.NoError(t, err)

	require.Equal(t, 1, fake.count(http.MethodPost, qualificationsPath))
	require.Len(t, fake.uploads, 1)
	upload := fake.uploads[0]
	assert.True(t, strings.HasPrefix(upload.Header.Get("Content-Type"), "multipart/form-data"))
	require.NotNil(t, upload.MultipartForm)
	assert.Equal(t, []string{"31"}, upload.MultipartForm.Value["id"])
	assert.Equal(t, []string{"42"}, upload.MultipartForm.Value["professional_id"])
	files := upload.MultipartForm.File["document"]
	require.Len(t, files, 1)
	assert.Equal(t, "certificate.pdf", files[0].Filename)
	assert.Equal(t, "application/pdf", files[0].Header.Get("Content-Type"))

	// qualifications list reloaded after the upload
	assert.Equal(t, 2, fake.count(http.MethodGet, qualificationsPath))
}

func TestSubmitEvidenceRequiresExistingRecord(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.route(http.MethodGet, dbsPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	agg, _ := newTestAggregator(t, fake, authedStore())

	_, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)
	before := fake.totalRequests()

	_, err = agg.SubmitEvidence(context.Background(), KindDBS, 0, Upload{
		FileName:    "dbs.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF-1.7 fake"),
	})
	require.ErrorIs(t, err, common.ErrMissingRecord)
	assert.Equal(t, before, fake.totalRequests(), "missing-record gate must not reach the network")
}

func TestSubmitEvidenceFileGate(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	agg, _ := newTestAggregator(t, fake, authedStore())

	_, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)
	before := fake.totalRequests()

	cases := []struct {
		name   string
		upload Upload
	}{
		{"unknown extension", Upload{FileName: "evidence.exe", ContentType: "application/octet-stream", Content: []byte("x")}},
		{"media type mismatch", Upload{FileName: "evidence.png", ContentType: "application/pdf", Content: []byte("x")}},
		{"empty file", Upload{FileName: "evidence.png", ContentType: "image/png"}},
		{"oversized", Upload{FileName: "evidence.png", ContentType: "image/png", Content: make([]byte, maxUploadSize+1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := agg.SubmitEvidence(context.Background(), KindIdentity, 0, tc.upload)
			require.ErrorIs(t, err, common.ErrInvalidFile)
		})
	}
	assert.Equal(t, before, fake.totalRequests(), "rejected files must not reach the network")
}

func TestSubmitEvidenceSurfacesRemoteFailure(t *testing.T) {
	fake := newFakeMarketplace(t)
	healthySlices(fake)
	fake.respond(http.MethodPost, identityDocumentPath, http.StatusUnprocessableEntity, map[string]any{
		"success": false, "message": "document is unreadable",
	})
	agg, captured := newTestAggregator(t, fake, authedStore())

	_, err := agg.RefreshAll(context.Background())
	require.NoError(t, err)
	stateBefore := agg.State()

	_, err = agg.SubmitEvidence(context.Background(), KindIdentity, 0, Upload{
		FileName:    "passport.jpg",
		ContentType: "image/jpeg",
		Content:     []byte("fake-jpeg"),
	})
	require.ErrorIs(t, err, common.ErrRemoteCall)
	assert.Contains(t, err.Error(), "document is unreadable")

	// no refetch and no local change on failure
	assert.Equal(t, 1, fake.count(http.MethodGet, identityPath))
	assert.Equal(t, stateBefore.Requirements, agg.State().Requirements)

	require.NotEmpty(t, *captured)
	last := (*captured)[len(*captured)-1]
	assert.Equal(t, alerts.LevelError, last.level)
	assert.Equal(t, "document is unreadable", last.message)
}

func TestSubmitEvidenceRejectsInsurance(t *testing.T) {
	fake := newFakeMarketplace(t)
	agg, _ := newTestAggregator(t, fake, authedStore())

	_, err := agg.SubmitEvidence(context.Background(), KindInsurance, 0, Upload{
		FileName:    "policy.pdf",
		ContentType: "application/pdf",
		Content:     []byte("%PDF"),
	})
	require.ErrorIs(t, err, common.ErrBadRequest)
	assert.Zero(t, fake.totalRequests())
}

func TestClassifyUploadEncodingIsPureFunctionOfKind(t *testing.T) {
	image, err := classifyUpload(Upload{FileName: "a.webp", ContentType: "image/webp", Content: []byte("x")})
	require.NoError(t, err)
	assert.True(t, image.IsImage())

	for _, f := range []struct{ name, mediaType string }{
		{"a.pdf", "application/pdf"},
		{"a.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"a.xls", "application/vnd.ms-excel"},
		{"a.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
	} {
		doc, err := classifyUpload(Upload{FileName: f.name, ContentType: f.mediaType, Content: []byte("x")})
		require.NoError(t, err, f.name)
		assert.False(t, doc.IsImage(), f.name)
	}
}

func TestClassifyUploadFallsBackToExtensionWhenTypeMissing(t *testing.T) {
	c, err := classifyUpload(Upload{FileName: "scan.pdf", Content: []byte("%PDF")})
	require.NoError(t, err)
	assert.False(t, c.IsImage())
	assert.Equal(t, "application/pdf", c.FilePart().ContentType)

	img, err := classifyUpload(Upload{FileName: "scan.png", Content: []byte("x")})
	require.NoError(t, err)
	assert.True(t, img.IsImage())
	assert.Contains(t, img.DataURL(), "data:image/png;base64,")
}

func TestClassifyUploadAcceptsParameterizedMediaType(t *testing.T) {
	c, err := classifyUpload(Upload{FileName: "a.JPG", ContentType: "Image/JPEG; q=0.9", Content: []byte("x")})
	require.NoError(t, err)
	assert.True(t, c.IsImage())
}
