package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/api"
)

type cachedReply struct {
	contentType string
	body        []byte
}

// proxyEnvelope is the part of a backend request the relay looks at.
type proxyEnvelope struct {
	EventType string `json:"event_type"`
	UniqueID  string `json:"unique_id"`
	DocType   string `json:"doc_type"`
}

// handleProxy forwards a backend call to the Function App and mirrors its
// answer.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Warn("reading proxy request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	var env proxyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	log := s.log.With(zap.String("event_type", env.EventType), zap.String("session_id", env.UniqueID))

	scope := credentialScope(r.Header.Get("Authorization"))
	key := compareKey(scope, env.UniqueID, env.DocType)
	cacheable := api.Op(env.EventType) == api.OpCompare && s.compares != nil && scope != ""
	if cacheable {
		if v, ok := s.compares.Get(key); ok {
			c := v.(cachedReply)
			log.Info("serving cached comparison")
			w.Header().Set("Content-Type", c.contentType)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(c.body)
			return
		}
	}
	if api.Op(env.EventType) == api.OpClearSession {
		s.evict(scope, env.UniqueID)
	}

	if s.cfg.FunctionAppURL == "" {
		log.Error("FUNCTION_APP_URL is not set")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.FunctionAppURL, bytes.NewReader(body))
	if err != nil {
		log.Error("building upstream request", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if id := r.Header.Get(api.RequestIDHeader); id != "" {
		req.Header.Set(api.RequestIDHeader, id)
	}

	resp, err := s.upstream.Do(req)
	if err != nil {
		log.Warn("no response from Function App", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "Gateway timeout - Function App not responding")
		return
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Warn("reading Function App response", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, "Gateway timeout - Function App not responding")
		return
	}
	log.Info("Function App responded", zap.Int("status", resp.StatusCode))

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	if cacheable && resp.StatusCode == http.StatusOK {
		s.compares.SetDefault(key, cachedReply{contentType: ct, body: reply})
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(reply)
}
