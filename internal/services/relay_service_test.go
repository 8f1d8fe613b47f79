package services_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/opencanopy/living-forest/internal/models"
	"github.com/opencanopy/living-forest/internal/services"
	"github.com/opencanopy/living-forest/internal/store"
	"github.com/opencanopy/living-forest/pkg/file"
	"github.com/opencanopy/living-forest/pkg/groq"
	"github.com/opencanopy/living-forest/pkg/location"
	"github.com/opencanopy/living-forest/tests/mocks"
)

type relayFixture struct {
	svc        *services.RelayService
	treeStore  *store.TreeStore
	chatClient *mocks.MockChatClient
}

func newRelayFixture(t *testing.T, apiKey string) *relayFixture {
	t.Helper()
	slotPath := filepath.Join(t.TempDir(), "uploadedTrees.json")
	treeStore := store.NewTreeStore(slotPath, "uploadedTrees", "forest/treesUpdated", 1, "ctx-a",
		file.NewFileService(), nil, zerolog.Nop())

	chatClient := new(mocks.MockChatClient)
	resolver := location.NewResolver(nil, nil, zerolog.Nop())

	svc := services.NewRelayService(":0", apiKey, "", 1280, 720,
		chatClient, treeStore, resolver, zerolog.Nop())

	return &relayFixture{svc: svc, treeStore: treeStore, chatClient: chatClient}
}

func (f *relayFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return parsed
}

func TestRelayService_ChatSuccess(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	f.chatClient.On("ChatComplete", mock.Anything, "test-key", "hello").Return("hi", nil)

	rec := f.do(t, http.MethodPost, "/api/groq-chat", `{"prompt":"hello"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hi", decodeBody(t, rec)["reply"])
	f.chatClient.AssertExpectations(t)
}

func TestRelayService_ChatMissingPrompt(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	for _, body := range []string{`{}`, `{"prompt":42}`, `{"prompt":""}`, `not json`} {
		rec := f.do(t, http.MethodPost, "/api/groq-chat", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
		assert.Equal(t, "Missing or invalid prompt", decodeBody(t, rec)["error"])
	}
}

func TestRelayService_ChatMethodNotAllowed(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodGet, "/api/groq-chat", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, rec)["error"])
}

func TestRelayService_ChatMissingCredential(t *testing.T) {
	f := newRelayFixture(t, "")

	// The configuration error wins regardless of prompt validity.
	for _, body := range []string{`{"prompt":"hello"}`, `{}`} {
		rec := f.do(t, http.MethodPost, "/api/groq-chat", body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, services.MissingCredentialMessage, decodeBody(t, rec)["error"])
	}
}

func TestRelayService_ChatUpstreamErrorIsNormalized(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	f.chatClient.On("ChatComplete", mock.Anything, "test-key", "hello").
		Return("", &groq.APIError{StatusCode: 429, Message: "Rate limit reached"})

	rec := f.do(t, http.MethodPost, "/api/groq-chat", `{"prompt":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Rate limit reached", decodeBody(t, rec)["error"])
}

func TestRelayService_ChatTransportErrorIsGeneric(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	f.chatClient.On("ChatComplete", mock.Anything, "test-key", "hello").
		Return("", assert.AnError)

	rec := f.do(t, http.MethodPost, "/api/groq-chat", `{"prompt":"hello"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, groq.GenericFailureMessage, decodeBody(t, rec)["error"])
}

func TestRelayService_PreflightAndCORSHeaders(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodOptions, "/api/groq-chat", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,OPTIONS,PATCH,DELETE,POST,PUT", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestRelayService_PanicBecomesInternalServerError(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	f.chatClient.On("ChatComplete", mock.Anything, "test-key", "boom").
		Run(func(mock.Arguments) { panic("unexpected") }).Return("", nil)

	rec := f.do(t, http.MethodPost, "/api/groq-chat", `{"prompt":"boom"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}

func TestRelayService_CreateTree(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodPost, "/api/trees",
		`{"name":"Elder Oak","species":"Quercus robur","location":"North Grove","lat":12.1,"lng":80.1}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	tree := decodeBody(t, rec)["tree"].(map[string]any)
	assert.Equal(t, "Elder Oak", tree["name"])
	assert.NotEmpty(t, tree["id"])

	current := f.treeStore.Current()
	require.Len(t, current, 1)
	require.NotNil(t, current[0].Coordinate)
	assert.Equal(t, 12.1, current[0].Coordinate.Lat)
}

func TestRelayService_CreateTreeValidation(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	cases := []struct {
		body    string
		message string
	}{
		{`{"name":"Elder Oak","location":"  "}`, "Please enter a location."},
		{`{"name":"","location":"North Grove"}`, "Please enter a tree name."},
		{`{"name":"Elder Oak","location":"North Grove","lat":12.1}`, "Latitude and longitude must be provided together."},
		{`{"name":"Elder Oak","location":"North Grove","status":"glowing"}`, "Invalid status."},
	}

	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, "/api/trees", tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Equal(t, tc.message, decodeBody(t, rec)["error"])
	}

	// User input errors never mutate state.
	assert.Empty(t, f.treeStore.Current())
}

func TestRelayService_CreateTreeWithoutCoordinates(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	// No resolver backends are configured, so the record lands without a
	// coordinate and will render no marker.
	rec := f.do(t, http.MethodPost, "/api/trees", `{"name":"Whispering Ash","location":"South Meadow"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	current := f.treeStore.Current()
	require.Len(t, current, 1)
	assert.Nil(t, current[0].Coordinate)
}

func TestRelayService_ListTrees(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	record := f.treeStore.NewRecord("Elder Oak", "", "North Grove", nil, models.TreeStatusCritical, "")
	require.NoError(t, f.treeStore.Append(record))

	rec := f.do(t, http.MethodGet, "/api/trees", "")

	require.Equal(t, http.StatusOK, rec.Code)
	trees := decodeBody(t, rec)["trees"].([]any)
	require.Len(t, trees, 1)
	item := trees[0].(map[string]any)
	assert.Equal(t, "Elder Oak", item["name"])
	assert.Equal(t, "Urgent", item["statusLabel"])
	assert.Equal(t, true, item["isNew"])
}

func TestRelayService_ForestView(t *testing.T) {
	f := newRelayFixture(t, "test-key")
	first := f.treeStore.NewRecord("A", "", "north", &models.Coordinate{Lat: 12.0, Lng: 80.0}, models.TreeStatusHealthy, "")
	require.NoError(t, f.treeStore.Append(first))
	second := f.treeStore.NewRecord("B", "", "south", &models.Coordinate{Lat: 12.2, Lng: 80.2}, models.TreeStatusHealthy, "")
	require.NoError(t, f.treeStore.Append(second))
	unplaced := f.treeStore.NewRecord("C", "", "unknown", nil, models.TreeStatusHealthy, "")
	require.NoError(t, f.treeStore.Append(unplaced))

	rec := f.do(t, http.MethodGet, "/api/trees/view?width=1024&height=768", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	center := body["center"].(map[string]any)
	assert.InDelta(t, 12.1, center["lat"].(float64), 1e-9)
	assert.InDelta(t, 80.1, center["lng"].(float64), 1e-9)

	// Only records carrying coordinates project to markers.
	markers := body["markers"].([]any)
	assert.Len(t, markers, 2)
	assert.NotEmpty(t, body["embedUrl"])
}

func TestRelayService_ForestViewWithoutTrees(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodGet, "/api/trees/view", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Empty(t, body["markers"])
	assert.Contains(t, body["embedUrl"], "maps.google.com")
}

func TestRelayService_Health(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
}

func TestRelayService_UnknownRoute(t *testing.T) {
	f := newRelayFixture(t, "test-key")

	rec := f.do(t, http.MethodGet, "/api/unknown", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not found", decodeBody(t, rec)["error"])
}
