package runtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/drblury/streamsearch/internal/runtime/config"
	"github.com/drblury/streamsearch/internal/runtime/jsoncodec"
)

// SubscriptionView is the web UI representation of a registered query.
type SubscriptionView struct {
	Query          string        `json:"query"`
	ContextCount   int           `json:"context_count"`
	RateLimit      int           `json:"rate_limit,omitempty"`
	ScoreThreshold float64       `json:"score_threshold,omitempty"`
	Live           bool          `json:"live"`
	SubscribedAt   time.Time     `json:"subscribed_at"`
	Stats          *QueryMetrics `json:"stats,omitempty"`
}

// StartWebUIServer registers the read-only JSON API on the web UI port.
func (s *Service) StartWebUIServer() {
	if !s.Conf.WebUIEnabled {
		return
	}

	port := s.Conf.WebUIPort
	if port == 0 {
		port = config.DefaultWebUIPort
	}

	s.RegisterHTTPHandler(port, "/api/subscriptions", http.HandlerFunc(s.handleGetSubscriptions))
	s.RegisterHTTPHandler(port, "/api/metrics", http.HandlerFunc(s.handleGetMetrics))
	s.RegisterHTTPHandler(port, "/api/subscribers", http.HandlerFunc(s.handleGetSubscribers))
}

func (s *Service) subscriptionViews() []SubscriptionView {
	subs := s.manager.Subscriptions()
	views := make([]SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		view := SubscriptionView{
			Query:          sub.Query,
			ContextCount:   sub.ContextCount,
			RateLimit:      sub.RateLimit,
			ScoreThreshold: sub.ScoreThreshold,
			Live:           sub.Live(),
			SubscribedAt:   sub.SubscribedAt,
		}
		if s.metrics != nil {
			view.Stats = s.metrics.QueryMetrics(sub.Query)
		}
		views = append(views, view)
	}
	return views
}

func (s *Service) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	if s.writeAPIHeaders(w, r) {
		return
	}
	s.writeJSON(w, s.subscriptionViews())
}

func (s *Service) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if s.writeAPIHeaders(w, r) {
		return
	}
	if s.metrics == nil {
		http.Error(w, "metrics are disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, s.metrics.Snapshot())
}

func (s *Service) handleGetSubscribers(w http.ResponseWriter, r *http.Request) {
	if s.writeAPIHeaders(w, r) {
		return
	}
	n := s.Node()
	if n == nil {
		http.Error(w, "no search node attached", http.StatusNotFound)
		return
	}
	s.writeJSON(w, n.Subscribers())
}

// writeAPIHeaders sets the content type and CORS headers. It reports true when
// the request was a preflight and has been answered.
func (s *Service) writeAPIHeaders(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.WebUICORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode web UI response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
