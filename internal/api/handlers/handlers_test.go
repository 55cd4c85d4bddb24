package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-engine/internal/domain"
	"github.com/dvloznov/statement-engine/internal/filestore"
	"github.com/dvloznov/statement-engine/internal/jobs"
	"github.com/dvloznov/statement-engine/internal/reprocess"
	"github.com/dvloznov/statement-engine/internal/store"
)

type capturingPublisher struct {
	published []*jobs.ProcessStatementJob
	err       error
}

func (p *capturingPublisher) PublishProcessStatement(ctx context.Context, job *jobs.ProcessStatementJob) error {
	if p.err != nil {
		return p.err
	}
	if job.JobID == "" {
		job.JobID = fmt.Sprintf("job-%d", len(p.published)+1)
	}
	p.published = append(p.published, job)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

type testAPI struct {
	store     *store.Store
	files     *filestore.Store
	publisher *capturingPublisher
	router    *mux.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())

	files := filestore.New(t.TempDir())
	publisher := &capturingPublisher{}
	log := zerolog.Nop()

	statements := NewStatementsHandler(st, files, publisher, 1<<20, log)
	transactions := NewTransactionsHandler(st, log)
	rules := NewRulesHandler(st, log)
	categories := NewCategoriesHandler(st, log)
	coordinator := reprocess.NewCoordinator(st, st, log)
	reprocessHandler := NewReprocessHandler(coordinator, log)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/statements", statements.Upload).Methods(http.MethodPost)
	api.HandleFunc("/statements", statements.List).Methods(http.MethodGet)
	api.HandleFunc("/statements/{id}", statements.Get).Methods(http.MethodGet)
	api.HandleFunc("/transactions", transactions.List).Methods(http.MethodGet)
	api.HandleFunc("/rules", rules.List).Methods(http.MethodGet)
	api.HandleFunc("/rules", rules.Create).Methods(http.MethodPost)
	api.HandleFunc("/rules/{id}", rules.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/categories", categories.List).Methods(http.MethodGet)
	api.HandleFunc("/reprocess", reprocessHandler.Trigger).Methods(http.MethodPost)
	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	return &testAPI{store: st, files: files, publisher: publisher, router: r}
}

func (a *testAPI) do(t *testing.T, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestUpload_Accepted(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/statements?filename=march.txt", "text/plain",
		[]byte("01/03/2024 | STRIPE PAYMENT | -50.00\n"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Statement domain.Statement `json:"statement"`
		JobID     string           `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatementStatusUploaded, resp.Statement.Status)
	assert.Equal(t, "march.txt", resp.Statement.Filename)
	assert.NotEmpty(t, resp.JobID)

	// The upload bytes are stored under the statement id and a job is queued.
	data, err := api.files.Load(resp.Statement.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STRIPE PAYMENT")

	require.Len(t, api.publisher.published, 1)
	assert.Equal(t, resp.Statement.ID, api.publisher.published[0].StatementID)
}

func TestUpload_RejectsUnsupportedContentType(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/statements", "image/png", []byte("data"))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	// Nothing was created.
	list := api.do(t, http.MethodGet, "/api/statements", "", nil)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.Empty(t, api.publisher.published)
}

func TestUpload_RejectsOversizedBody(t *testing.T) {
	api := newTestAPI(t)

	big := bytes.Repeat([]byte("x"), (1<<20)+1)
	rec := api.do(t, http.MethodPost, "/api/statements", "text/plain", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, api.publisher.published)
}

func TestUpload_RejectsEmptyBody(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/statements", "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// multipartUpload builds a multipart form body with a single file part.
func multipartUpload(t *testing.T, field, filename, contentType string, data []byte) ([]byte, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return buf.Bytes(), w.FormDataContentType()
}

func TestUpload_MultipartAccepted(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartUpload(t, "file", "march.pdf", "application/pdf",
		[]byte("01/03/2024 | STRIPE PAYMENT | -50.00\n"))
	rec := api.do(t, http.MethodPost, "/api/statements", contentType, body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Statement domain.Statement `json:"statement"`
		JobID     string           `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatementStatusUploaded, resp.Statement.Status)
	assert.Equal(t, "march.pdf", resp.Statement.Filename)
	assert.NotEmpty(t, resp.JobID)

	data, err := api.files.Load(resp.Statement.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "STRIPE PAYMENT")

	require.Len(t, api.publisher.published, 1)
	assert.Equal(t, resp.Statement.ID, api.publisher.published[0].StatementID)
}

func TestUpload_MultipartRejectsUnsupportedPartType(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartUpload(t, "file", "photo.png", "image/png", []byte("data"))
	rec := api.do(t, http.MethodPost, "/api/statements", contentType, body)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, api.publisher.published)
}

func TestUpload_MultipartRequiresFileField(t *testing.T) {
	api := newTestAPI(t)

	body, contentType := multipartUpload(t, "document", "march.pdf", "application/pdf", []byte("data"))
	rec := api.do(t, http.MethodPost, "/api/statements", contentType, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, api.publisher.published)
}

func TestStatements_GetNotFound(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/statements/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRules_CreateAndDelete(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	_, err := api.store.EnsureCategory(ctx, "Business Income")
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{
		"keyword":     "STRIPE",
		"category":    "Business Income",
		"subcategory": "Payments",
		"priority":    10,
	})
	rec := api.do(t, http.MethodPost, "/api/rules", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "STRIPE", created.Keyword)
	assert.Equal(t, 10, created.Priority)
	assert.Equal(t, domain.RuleStatusActive, created.Status)

	del := api.do(t, http.MethodDelete, fmt.Sprintf("/api/rules/%d", created.ID), "", nil)
	assert.Equal(t, http.StatusNoContent, del.Code)

	again := api.do(t, http.MethodDelete, fmt.Sprintf("/api/rules/%d", created.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, again.Code)
}

func TestRules_CreateValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "blank keyword", body: map[string]any{"keyword": "   "}},
		{name: "unknown category", body: map[string]any{"keyword": "STRIPE", "category": "Nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			rec := api.do(t, http.MethodPost, "/api/rules", "application/json", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRules_CreateDefaultsPriority(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(map[string]any{"keyword": "AWS"})
	rec := api.do(t, http.MethodPost, "/api/rules", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 100, created.Priority)
}

func TestRules_CreateHonorsExplicitZeroPriority(t *testing.T) {
	api := newTestAPI(t)

	body, _ := json.Marshal(map[string]any{"keyword": "URGENT", "priority": 0})
	rec := api.do(t, http.MethodPost, "/api/rules", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created domain.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 0, created.Priority)

	// The zero survives the round trip to the database.
	stored, err := api.store.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 0, stored[0].Priority)
}

func TestTransactions_ListAndExport(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	_, err := api.store.CreateStatement(ctx, "stmt-1", "march.txt")
	require.NoError(t, err)
	require.NoError(t, api.store.InsertTransactions(ctx, "stmt-1", []domain.Transaction{
		{Description: "STRIPE PAYMENT", Amount: decimal.NewFromInt(-50)},
	}))

	rec := api.do(t, http.MethodGet, "/api/transactions?statement_id=stmt-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	csvRec := api.do(t, http.MethodGet, "/api/transactions?export=csv", "", nil)
	require.Equal(t, http.StatusOK, csvRec.Code)
	assert.Equal(t, "text/csv", csvRec.Header().Get("Content-Type"))
	assert.Contains(t, csvRec.Body.String(), "STRIPE PAYMENT")

	bad := api.do(t, http.MethodGet, "/api/transactions?export=pdf", "", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestReprocess_TriggerAndResult(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	_, err := api.store.CreateStatement(ctx, "stmt-1", "march.txt")
	require.NoError(t, err)
	require.NoError(t, api.store.InsertTransactions(ctx, "stmt-1", []domain.Transaction{
		{Description: "STRIPE PAYMENT", Amount: decimal.NewFromInt(-50)},
	}))
	_, err = api.store.CreateRule(ctx, domain.Rule{Keyword: "STRIPE", Category: "Business Income", Priority: 10})
	require.NoError(t, err)

	rec := api.do(t, http.MethodPost, "/api/reprocess", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result reprocess.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Updated)
}

func TestCategories_List(t *testing.T) {
	api := newTestAPI(t)
	ctx := context.Background()

	_, err := api.store.EnsureCategory(ctx, "Other")
	require.NoError(t, err)

	rec := api.do(t, http.MethodGet, "/api/categories", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Categories []domain.Category `json:"categories"`
		Count      int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "Other", resp.Categories[0].Name)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
