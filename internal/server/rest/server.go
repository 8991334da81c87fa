// Package rest exposes the collaborator-facing HTTP API of the consent core:
// token issuance/validation/revocation, trust-link delegation and the
// encrypted vault. Agents are the intended callers; every denial carries a
// machine-readable error kind so callers can report the specific reason.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/scope"
	"github.com/agentmesh/trustcore/internal/token"
	"github.com/agentmesh/trustcore/internal/trust"
	"github.com/agentmesh/trustcore/internal/vault"
)

// ConsentTokenHeader carries the wire consent token gating vault operations.
const ConsentTokenHeader = "X-Consent-Token"

// Server wires core services into HTTP handlers.
type Server struct {
	authority *token.Authority
	links     *trust.Manager
	vault     *vault.Service
	log       *zap.Logger
}

// New constructs the REST server with injected services.
func New(authority *token.Authority, links *trust.Manager, vaultSvc *vault.Service, log *zap.Logger) *Server {
	return &Server{authority: authority, links: links, vault: vaultSvc, log: log}
}

// Router builds the full route table with logging and recovery middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(Recover(s.log), Logging(s.log))

	r.HandleFunc("/v1/tokens", s.issueToken).Methods(http.MethodPost)
	r.HandleFunc("/v1/tokens/validate", s.validateToken).Methods(http.MethodPost)
	r.HandleFunc("/v1/tokens/revoke", s.revokeToken).Methods(http.MethodPost)

	r.HandleFunc("/v1/trust-links", s.createTrustLink).Methods(http.MethodPost)
	r.HandleFunc("/v1/trust-links/verify", s.verifyTrustLink).Methods(http.MethodPost)
	r.HandleFunc("/v1/trust-links/revoke", s.revokeTrustLink).Methods(http.MethodPost)

	const recordPath = "/v1/vault/{userID}/{agentID}/{recordType}/{recordID}"
	r.HandleFunc(recordPath, s.storeRecord).Methods(http.MethodPut)
	r.HandleFunc(recordPath, s.retrieveRecord).Methods(http.MethodGet)
	r.HandleFunc(recordPath, s.deleteRecord).Methods(http.MethodDelete)

	return r
}

// --- error mapping ---

// kindOf maps a core error to its taxonomy name and HTTP status.
// ErrUnauthorizedDelegation wraps the inner cause of a rejected delegation,
// so it is matched before the token kinds it may carry.
func kindOf(err error) (string, int) {
	switch {
	case errors.Is(err, errs.ErrUnauthorizedDelegation):
		return "UnauthorizedDelegation", http.StatusForbidden
	case errors.Is(err, errs.ErrUnknownScope):
		return "UnknownScope", http.StatusBadRequest
	case errors.Is(err, errs.ErrMalformedToken):
		return "MalformedToken", http.StatusBadRequest
	case errors.Is(err, errs.ErrInvalidSignature):
		return "InvalidSignature", http.StatusUnauthorized
	case errors.Is(err, errs.ErrTokenExpired):
		return "TokenExpired", http.StatusUnauthorized
	case errors.Is(err, errs.ErrTokenRevoked):
		return "TokenRevoked", http.StatusUnauthorized
	case errors.Is(err, errs.ErrInsufficientScope):
		return "InsufficientScope", http.StatusForbidden
	case errors.Is(err, errs.ErrWrongRecipient):
		return "TrustLinkWrongRecipient", http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return "NotFound", http.StatusNotFound
	case errors.Is(err, errs.ErrVaultIntegrity):
		return "VaultIntegrity", http.StatusInternalServerError
	case errors.Is(err, errs.ErrBackendUnavailable):
		return "BackendUnavailable", http.StatusServiceUnavailable
	default:
		return "BadRequest", http.StatusBadRequest
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind, status := kindOf(err)
	s.writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Error("encode response", zap.Error(err))
		}
	}
}

func decodeBody(req *http.Request, v any) error {
	defer req.Body.Close()
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- tokens ---

type issueTokenRequest struct {
	UserID     string `json:"user_id"`
	AgentID    string `json:"agent_id"`
	Scope      string `json:"scope"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) issueToken(w http.ResponseWriter, req *http.Request) {
	var in issueTokenRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	sc, err := scope.Parse(in.Scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, t, err := s.authority.Issue(in.UserID, in.AgentID, sc, time.Duration(in.TTLSeconds)*time.Second)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, issueTokenResponse{Token: raw, ExpiresAt: t.ExpiresAt})
}

type validateTokenRequest struct {
	Token         string `json:"token"`
	RequiredScope string `json:"required_scope"`
}

type grantResponse struct {
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	FromAgent string    `json:"from_agent,omitempty"`
	ToAgent   string    `json:"to_agent,omitempty"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) validateToken(w http.ResponseWriter, req *http.Request) {
	var in validateTokenRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	sc, err := scope.Parse(in.RequiredScope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.authority.Validate(req.Context(), in.Token, sc, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, grantResponse{
		UserID: t.UserID, AgentID: t.AgentID, Scope: string(t.Scope), ExpiresAt: t.ExpiresAt,
	})
}

type revokeRequest struct {
	Token string `json:"token"`
}

func (s *Server) revokeToken(w http.ResponseWriter, req *http.Request) {
	var in revokeRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	if err := s.authority.Revoke(req.Context(), in.Token); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- trust links ---

type createTrustLinkRequest struct {
	FromAgent         string            `json:"from_agent"`
	ToAgent           string            `json:"to_agent"`
	UserID            string            `json:"user_id"`
	Scope             string            `json:"scope"`
	TTLSeconds        int64             `json:"ttl_seconds"`
	DelegationContext map[string]string `json:"delegation_context,omitempty"`
	AuthorizingToken  string            `json:"authorizing_token"`
}

type createTrustLinkResponse struct {
	TrustLink string    `json:"trust_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) createTrustLink(w http.ResponseWriter, req *http.Request) {
	var in createTrustLinkRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	sc, err := scope.Parse(in.Scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, l, err := s.links.Create(req.Context(), in.FromAgent, in.ToAgent, in.UserID, sc,
		time.Duration(in.TTLSeconds)*time.Second, in.DelegationContext, in.AuthorizingToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, createTrustLinkResponse{TrustLink: raw, ExpiresAt: l.ExpiresAt})
}

type verifyTrustLinkRequest struct {
	TrustLink     string `json:"trust_link"`
	RequiredScope string `json:"required_scope"`
	AgentID       string `json:"agent_id"` // the agent presenting the link
}

func (s *Server) verifyTrustLink(w http.ResponseWriter, req *http.Request) {
	var in verifyTrustLinkRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	sc, err := scope.Parse(in.RequiredScope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	l, err := s.links.Verify(req.Context(), in.TrustLink, sc, in.AgentID, time.Now())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, grantResponse{
		UserID: l.UserID, FromAgent: l.FromAgent, ToAgent: l.ToAgent,
		Scope: string(l.Scope), ExpiresAt: l.ExpiresAt,
	})
}

type revokeTrustLinkRequest struct {
	TrustLink string `json:"trust_link"`
}

func (s *Server) revokeTrustLink(w http.ResponseWriter, req *http.Request) {
	var in revokeTrustLinkRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	if err := s.links.Revoke(req.Context(), in.TrustLink); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- vault ---

// authorizeVault validates the consent token from the request header for the
// required scope and checks it was granted to the (user, agent) in the path.
// The vault never executes an operation before this passes.
func (s *Server) authorizeVault(req *http.Request, userID, agentID string, required scope.Scope) error {
	raw := req.Header.Get(ConsentTokenHeader)
	if raw == "" {
		return errors.New("missing " + ConsentTokenHeader + " header")
	}
	t, err := s.authority.Validate(req.Context(), raw, required, time.Now())
	if err != nil {
		return err
	}
	if t.UserID != userID || t.AgentID != agentID {
		return fmt.Errorf("token granted to (%s,%s), not to the addressed (%s,%s): %w",
			t.UserID, t.AgentID, userID, agentID, errs.ErrInsufficientScope)
	}
	return nil
}

type storeRecordRequest struct {
	Data  []byte `json:"data"` // base64 in JSON
	Scope string `json:"scope"`
}

type recordResponse struct {
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	Data       []byte    `json:"data,omitempty"`
	Scope      string    `json:"scope"`
	Algorithm  string    `json:"algorithm"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Server) storeRecord(w http.ResponseWriter, req *http.Request) {
	v := mux.Vars(req)
	var in storeRecordRequest
	if err := decodeBody(req, &in); err != nil {
		s.writeError(w, errors.New("bad request body"))
		return
	}
	sc, err := scope.Parse(in.Scope)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.authorizeVault(req, v["userID"], v["agentID"], sc); err != nil {
		s.writeError(w, err)
		return
	}
	rec, err := s.vault.Store(req.Context(), v["userID"], v["agentID"], v["recordType"], v["recordID"], in.Data, sc)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recordResponse{
		RecordType: rec.RecordType, RecordID: rec.RecordID, Scope: string(rec.Scope),
		Algorithm: rec.Algorithm, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	})
}

func (s *Server) retrieveRecord(w http.ResponseWriter, req *http.Request) {
	v := mux.Vars(req)
	sc, err := scope.Parse(req.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.authorizeVault(req, v["userID"], v["agentID"], sc); err != nil {
		s.writeError(w, err)
		return
	}
	plaintext, rec, err := s.vault.Retrieve(req.Context(), v["userID"], v["agentID"], v["recordType"], v["recordID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, recordResponse{
		RecordType: rec.RecordType, RecordID: rec.RecordID, Data: plaintext, Scope: string(rec.Scope),
		Algorithm: rec.Algorithm, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	})
}

func (s *Server) deleteRecord(w http.ResponseWriter, req *http.Request) {
	v := mux.Vars(req)
	sc, err := scope.Parse(req.URL.Query().Get("scope"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.authorizeVault(req, v["userID"], v["agentID"], sc); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.vault.Delete(req.Context(), v["userID"], v["agentID"], v["recordType"], v["recordID"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
