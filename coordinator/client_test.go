package coordinator

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/debridge-finance/oracle-node/models"
)

func init() {
	log.SetOutput(io.Discard)
}

func TestClientNoOpWhenUnconfigured(t *testing.T) {
	client := NewClient(models.CoordinatorConfig{})

	client.NotifyError("boom")
	assert.Nil(t, client.UploadToApi([]models.Submission{{SubmissionId: "0x01"}}))
	assert.Nil(t, client.UploadStatistic([]models.ProgressInfo{{ChainId: 1}}))
}

func TestClientUploadToApi(t *testing.T) {
	var gotPath string
	var gotBody []models.Submission
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(models.CoordinatorConfig{BaseURL: server.URL, TimeoutMillis: 5000})

	err := client.UploadToApi([]models.Submission{{SubmissionId: "0x01", Nonce: 3}})

	assert.Nil(t, err)
	assert.Equal(t, "/api/confirmations", gotPath)
	assert.Len(t, gotBody, 1)
	assert.Equal(t, "0x01", gotBody[0].SubmissionId)
}

func TestClientUploadStatistic(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(models.CoordinatorConfig{BaseURL: server.URL, TimeoutMillis: 5000})

	err := client.UploadStatistic([]models.ProgressInfo{{ChainId: 1}})

	assert.Nil(t, err)
	assert.Equal(t, "/api/progress", gotPath)
}

func TestClientNonOkayStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(models.CoordinatorConfig{BaseURL: server.URL, TimeoutMillis: 5000})

	err := client.UploadToApi([]models.Submission{{SubmissionId: "0x01"}})

	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "the http status code was not okay: 500")
}

func TestClientNotifyErrorSwallowsFailures(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/errors", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(models.CoordinatorConfig{BaseURL: server.URL, TimeoutMillis: 5000})

	// must not panic or propagate
	client.NotifyError("nonce validation failed on chain 1")
	assert.True(t, called)
}
