package api

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PalcoLivre/StageLink/internal/dispatch"
	"github.com/PalcoLivre/StageLink/internal/llm"
)

// webhookHandler services inbound Twilio WhatsApp messages. The reply rides
// back in the TwiML envelope when processing finishes inside the ceiling;
// otherwise the placeholder goes out and the dispatch worker delivers the
// real reply through the Twilio REST API.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		slog.Error("Webhook form parse failed", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		slog.Warn("Webhook missing fields", "from_set", from != "", "body_set", body != "")
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	subject, err := NormalizeSubject(from)
	if err != nil {
		slog.Warn("Webhook rejected malformed sender", "error", err, "from", from)
		http.Error(w, "invalid sender", http.StatusBadRequest)
		return
	}

	wait := s.opts.NewWait
	if state, stateErr := s.store.LoadState(subject); stateErr == nil && state != nil {
		wait = s.opts.KnownWait
	}

	reply, delivered, err := s.queue.EnqueueWait(subject, body, wait)
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		writeTwiML(w, s.opts.BusyText)
		return
	case err != nil:
		slog.Error("Webhook enqueue failed", "error", err, "subject", subject)
		writeTwiML(w, s.opts.ErrorText)
		return
	}

	if !delivered {
		slog.Debug("Webhook ceiling hit, placeholder returned", "subject", subject, "wait", wait)
		writeTwiML(w, s.opts.SlowDownText+"\n\n"+reply)
		return
	}
	writeTwiML(w, reply)
}

// healthHandler reports provider pool, store and queue health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var providers []llm.ProviderStatus
	if s.pool != nil {
		providers = s.pool.Snapshot()
	}

	storeOK := true
	if err := s.store.Ping(); err != nil {
		slog.Error("Health check store ping failed", "error", err)
		storeOK = false
	}
	queueStats := s.queue.Snapshot()

	status := "ok"
	code := http.StatusOK
	if !storeOK || !queueStats.Running {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, code, map[string]interface{}{
		"status":        status,
		"store":         storeOK,
		"queue_running": queueStats.Running,
		"providers":     providers,
	})
}

// statsHandler serves queue statistics plus today's interaction count.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	queueStats := s.queue.Snapshot()

	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	interactionsToday, err := s.store.CountInteractionsSince(midnight)
	if err != nil {
		slog.Error("Stats interaction count failed", "error", err)
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"queue":              queueStats,
		"interactions_today": interactionsToday,
	})
}

// NormalizeSubject maps a webhook sender to the canonical +E.164 subject ID:
// "whatsapp:" prefix stripped, non-digits removed, bare national numbers
// (10-11 digits) prefixed with Brazil's country code.
func NormalizeSubject(from string) (string, error) {
	trimmed := strings.TrimPrefix(from, "whatsapp:")
	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 6 {
		return "", fmt.Errorf("sender %q has too few digits", from)
	}
	if len(d) <= 11 && !strings.HasPrefix(d, "55") {
		d = "55" + d
	}
	return "+" + d, nil
}

// twimlResponse is the minimal TwiML envelope Twilio expects back from a
// messaging webhook.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// writeTwiML writes the reply as a TwiML message, XML-escaped by the encoder.
func writeTwiML(w http.ResponseWriter, message string) {
	out, err := xml.Marshal(twimlResponse{Message: message})
	if err != nil {
		slog.Error("TwiML marshal failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, xml.Header)
	if _, err := w.Write(out); err != nil {
		slog.Error("TwiML write failed", "error", err)
	}
}

// writeJSONResponse writes a JSON response with the given status code,
// marshaling first so encoding errors never corrupt the stream.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		jsonData = []byte(`{"error":"internal server error"}`)
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(jsonData); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}
