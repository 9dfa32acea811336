package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/agentforge/internal/domain"
)

type dispatcherStub struct {
	dispatched []domain.Job
	result     bool
}

func (d *dispatcherStub) Dispatch(ctx context.Context, job domain.Job) bool {
	d.dispatched = append(d.dispatched, job)
	return d.result
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandler_DispatchesGeneratePlanJobOnAgentLabel(t *testing.T) {
	dispatcher := &dispatcherStub{result: true}
	h := New(dispatcher, Config{Secret: "s3cr3t"})

	body := []byte(`{"Owner":"acme","Repo":"widgets","IssueNumber":42,"Action":"labeled","Label":"agent"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("s3cr3t", body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, "GeneratePlan", dispatcher.dispatched[0].Type)
}

func TestHandler_IgnoresUnrecognizedLabel(t *testing.T) {
	dispatcher := &dispatcherStub{result: true}
	h := New(dispatcher, Config{Secret: "s3cr3t"})

	body := []byte(`{"Owner":"acme","Repo":"widgets","IssueNumber":42,"Action":"labeled","Label":"wontfix"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("s3cr3t", body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.dispatched)
}

func TestHandler_RejectsInvalidSignature(t *testing.T) {
	dispatcher := &dispatcherStub{result: true}
	h := New(dispatcher, Config{Secret: "s3cr3t"})

	body := []byte(`{"Owner":"acme","Repo":"widgets","IssueNumber":42,"Label":"agent"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, dispatcher.dispatched)
}

func TestHandler_RejectsMalformedPayload(t *testing.T) {
	dispatcher := &dispatcherStub{result: true}
	h := New(dispatcher, Config{Secret: "s3cr3t"})

	body := []byte(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("s3cr3t", body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
