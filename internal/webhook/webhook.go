// Package webhook implements the ingress handler described by SPEC_FULL
// 4.13: an HMAC-signed endpoint that turns a recognized GitHub issue event
// into a GeneratePlan job, grounded on the teacher's
// internal/http/handler/item.go request-decode-then-dispatch shape.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/handlers"
	"github.com/rezkam/agentforge/internal/http/response"
)

// Dispatcher is the subset of dispatch.Dispatcher the webhook handler
// depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) bool
}

// Config controls signature verification and which label triggers a job.
type Config struct {
	Secret          string
	SignatureHeader string
	AgentLabel      string
}

func (c *Config) applyDefaults() {
	if c.SignatureHeader == "" {
		c.SignatureHeader = "X-Hub-Signature-256"
	}
	if c.AgentLabel == "" {
		c.AgentLabel = "agent"
	}
}

// payload is the minimal event shape SPEC_FULL 4.13 specifies; the exact
// source-control webhook envelope is a contract-only concern, so this
// decodes only the fields the handler actually acts on.
type payload struct {
	Owner       string
	Repo        string
	IssueNumber int
	Action      string
	Label       string
}

// Handler is the net/http handler mounted at /webhooks/github.
type Handler struct {
	dispatcher Dispatcher
	cfg        Config
}

// New builds the webhook Handler. cfg.Secret must be non-empty; the caller
// (cmd/webhookd) is responsible for refusing to start otherwise.
func New(dispatcher Dispatcher, cfg Config) *Handler {
	cfg.applyDefaults()
	return &Handler{dispatcher: dispatcher, cfg: cfg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.BadRequest(w, "unable to read request body")
		return
	}

	if !h.verifySignature(r.Header.Get(h.cfg.SignatureHeader), body) {
		response.Unauthorized(w, "invalid signature")
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		response.BadRequest(w, "invalid JSON payload")
		return
	}
	if p.Owner == "" || p.Repo == "" || p.IssueNumber <= 0 {
		response.BadRequest(w, "Owner, Repo, and IssueNumber are required")
		return
	}

	if !strings.EqualFold(p.Label, h.cfg.AgentLabel) {
		response.OK(w, map[string]string{"status": "ignored"})
		return
	}

	taskID := fmt.Sprintf("%s/%s/issues/%d", p.Owner, p.Repo, p.IssueNumber)
	payloadBytes, err := json.Marshal(struct{ TaskId string }{TaskId: taskID})
	if err != nil {
		response.InternalError(w, r, err)
		return
	}
	job := domain.Job{
		ID:             uuid.NewString(),
		Type:           handlers.GeneratePlanJobType,
		Payload:        payloadBytes,
		IdempotencyKey: taskID,
	}

	if h.dispatcher.Dispatch(r.Context(), job) {
		response.Accepted(w, map[string]string{"status": "dispatched", "task_id": taskID})
		return
	}
	response.OK(w, map[string]string{"status": "ignored", "task_id": taskID})
}

func (h *Handler) verifySignature(header string, body []byte) bool {
	if h.cfg.Secret == "" {
		return false
	}
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.cfg.Secret))
	mac.Write(body)
	want := mac.Sum(nil)
	return hmac.Equal(got, want)
}
