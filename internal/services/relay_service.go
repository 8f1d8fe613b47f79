package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/process"

	"github.com/opencanopy/living-forest/internal/models"
	"github.com/opencanopy/living-forest/internal/store"
	"github.com/opencanopy/living-forest/pkg/geo"
	"github.com/opencanopy/living-forest/pkg/groq"
	"github.com/opencanopy/living-forest/pkg/location"
)

// MissingCredentialMessage is returned when the relay has no upstream key.
// Distinct from user-input errors so operators can tell "service
// misconfigured" apart from "upstream rejected request".
const MissingCredentialMessage = "Server not configured with GROQ_API_KEY. Please check your environment variables."

// RelayService serves the HTTP surface: the assistant proxy relay, the tree
// submission/read API, the forest map view, and a health endpoint.
type RelayService struct {
	// Configuration fields
	addr           string
	apiKey         string
	embedAPIKey    string
	fallbackWidth  float64
	fallbackHeight float64

	// Dependencies
	chatClient groq.ChatClient
	treeStore  *store.TreeStore
	resolver   *location.Resolver
	logger     zerolog.Logger

	// Internal state management
	server  *http.Server
	running bool
}

// NewRelayService creates a new RelayService. apiKey is the upstream
// credential; empty means every chat request answers with the
// configuration error.
func NewRelayService(addr, apiKey, embedAPIKey string, fallbackWidth, fallbackHeight float64,
	chatClient groq.ChatClient, treeStore *store.TreeStore, resolver *location.Resolver,
	logger zerolog.Logger) *RelayService {
	return &RelayService{
		addr:           addr,
		apiKey:         apiKey,
		embedAPIKey:    embedAPIKey,
		fallbackWidth:  fallbackWidth,
		fallbackHeight: fallbackHeight,
		chatClient:     chatClient,
		treeStore:      treeStore,
		resolver:       resolver,
		logger:         logger,
		running:        false,
	}
}

// Start begins serving HTTP on the configured address.
func (rs *RelayService) Start() error {
	if rs.running {
		rs.logger.Warn().Msg("RelayService is already running")
		return errors.New("relay service is already running")
	}

	rs.server = &http.Server{
		Addr:    rs.addr,
		Handler: rs.Handler(),
	}
	rs.running = true

	go func() {
		if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rs.logger.Error().Err(err).Msg("Relay server stopped unexpectedly")
		}
	}()

	rs.logger.Info().Str("addr", rs.addr).Msg("RelayService started")
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (rs *RelayService) Stop() error {
	if !rs.running {
		rs.logger.Warn().Msg("RelayService is not running")
		return errors.New("relay service is not running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rs.server.Shutdown(ctx); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to shut down relay server")
		return err
	}

	rs.running = false
	rs.logger.Info().Msg("RelayService stopped")
	return nil
}

// Handler returns the full HTTP handler with CORS and panic recovery
// applied.
func (rs *RelayService) Handler() http.Handler {
	return rs.withMiddleware(http.HandlerFunc(rs.handle))
}

func (rs *RelayService) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,OPTIONS,PATCH,DELETE,POST,PUT")
		h.Set("Access-Control-Allow-Headers",
			"X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version")

		defer func() {
			if rec := recover(); rec != nil {
				rs.logger.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Handler panicked")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rs *RelayService) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/groq-chat":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rs.handleChat(w, r)

	case "/api/trees":
		switch r.Method {
		case http.MethodPost:
			rs.handleCreateTree(w, r)
		case http.MethodGet:
			rs.handleListTrees(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}

	case "/api/trees/view":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rs.handleForestView(w, r)

	case "/api/health":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rs.handleHealth(w, r)

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// handleChat relays a free-text prompt to the completion service and
// normalizes every outcome to {reply} or {error}.
func (rs *RelayService) handleChat(w http.ResponseWriter, r *http.Request) {
	if rs.apiKey == "" {
		writeError(w, http.StatusInternalServerError, MissingCredentialMessage)
		return
	}

	var body struct {
		Prompt any `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Missing or invalid prompt")
		return
	}
	prompt, ok := body.Prompt.(string)
	if !ok || prompt == "" {
		writeError(w, http.StatusBadRequest, "Missing or invalid prompt")
		return
	}

	reply, err := rs.chatClient.ChatComplete(r.Context(), rs.apiKey, prompt)
	if err != nil {
		var apiErr *groq.APIError
		if errors.As(err, &apiErr) {
			rs.logger.Error().Int("status", apiErr.StatusCode).Str("message", apiErr.Message).Msg("Upstream rejected chat request")
			writeError(w, http.StatusInternalServerError, apiErr.Message)
			return
		}
		rs.logger.Error().Err(err).Msg("Chat request failed")
		writeError(w, http.StatusInternalServerError, groq.GenericFailureMessage)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": reply})
}

type createTreeRequest struct {
	Name         string   `json:"name"`
	Species      string   `json:"species"`
	Location     string   `json:"location"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Status       string   `json:"status"`
	LastVerified string   `json:"lastVerified"`
}

// handleCreateTree validates a submission, resolves its coordinate without
// failing the submission, and appends the record to the store.
func (rs *RelayService) handleCreateTree(w http.ResponseWriter, r *http.Request) {
	var req createTreeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Location) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a location.")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Please enter a tree name.")
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(w, http.StatusBadRequest, "Latitude and longitude must be provided together.")
		return
	}

	status := models.TreeStatus(req.Status)
	if req.Status == "" {
		status = models.TreeStatusHealthy
	} else if !status.IsValid() {
		writeError(w, http.StatusBadRequest, "Invalid status.")
		return
	}

	var coord *models.Coordinate
	if resolved := rs.resolver.Resolve(r.Context(), strings.TrimSpace(req.Location), req.Lat, req.Lng); resolved != nil {
		coord = &models.Coordinate{Lat: resolved.Lat, Lng: resolved.Lng}
	}

	record := rs.treeStore.NewRecord(req.Name, req.Species, req.Location, coord, status, req.LastVerified)
	if err := rs.treeStore.Append(record); err != nil {
		rs.logger.Error().Err(err).Msg("Failed to persist tree record")
		writeError(w, http.StatusInternalServerError, "Could not save tree. Please try again.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"tree": record})
}

type treeListItem struct {
	models.TreeRecord
	StatusLabel string `json:"statusLabel"`
	IsNew       bool   `json:"isNew"`
}

// handleListTrees returns the current collection with the derived
// transient-new flag and status label per record.
func (rs *RelayService) handleListTrees(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	trees := rs.treeStore.Current()

	items := make([]treeListItem, 0, len(trees))
	for _, t := range trees {
		items = append(items, treeListItem{
			TreeRecord:  t,
			StatusLabel: t.Status.Label(),
			IsNew:       t.IsNew(now),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"trees": items})
}

type markerPosition struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// handleForestView computes the auto-fit map view over every located tree
// and the pixel position of each marker for the caller's viewport.
func (rs *RelayService) handleForestView(w http.ResponseWriter, r *http.Request) {
	width := parseDimension(r.URL.Query().Get("width"))
	height := parseDimension(r.URL.Query().Get("height"))

	trees := rs.treeStore.Current()

	var coords []geo.Coordinate
	for _, t := range trees {
		if t.HasCoordinate() {
			coords = append(coords, geo.Coordinate{Lat: t.Coordinate.Lat, Lng: t.Coordinate.Lng})
		}
	}

	center, zoom := geo.FitBounds(coords)
	viewport := geo.Viewport{Center: center, Zoom: zoom, Width: width, Height: height}

	markers := make([]markerPosition, 0, len(coords))
	for _, t := range trees {
		if !t.HasCoordinate() {
			continue
		}
		p := geo.Project(geo.Coordinate{Lat: t.Coordinate.Lat, Lng: t.Coordinate.Lng},
			viewport, rs.fallbackWidth, rs.fallbackHeight)
		markers = append(markers, markerPosition{ID: t.ID, X: p.X, Y: p.Y})
	}

	embedURL := geo.DefaultViewURL()
	if len(coords) > 0 {
		embedURL = geo.EmbedURL(rs.embedAPIKey, center, zoom, coords)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"center":   map[string]float64{"lat": center.Lat, "lng": center.Lng},
		"zoom":     zoom,
		"embedUrl": embedURL,
		"markers":  markers,
	})
}

// handleHealth reports liveness plus process gauges.
func (rs *RelayService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	gauges := map[string]any{}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			gauges["memory_rss_bytes"] = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			gauges["cpu_percent"] = cpu
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"trees":   len(rs.treeStore.Current()),
		"process": gauges,
	})
}

func parseDimension(raw string) float64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already out; an encode failure here has no recovery.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
