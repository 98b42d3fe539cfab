package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/debridge-finance/oracle-node/models"
)

// Client reports validation outcomes and scan progress to the external
// coordination API. Every method degrades to a no-op when no base URL is
// configured so an oracle can run standalone.
type Client interface {
	NotifyError(message string)
	UploadToApi(confirmations []models.Submission) error
	UploadStatistic(progress []models.ProgressInfo) error
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a coordination API client from config. An empty base URL
// yields a client whose calls all no-op.
func NewClient(config models.CoordinatorConfig) Client {
	return &httpClient{
		baseURL: config.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutMillis) * time.Millisecond,
		},
	}
}

// NotifyError reports a data-integrity fault. Notification failures are
// logged and swallowed: escalation must never mask the fault that caused it.
func (c *httpClient) NotifyError(message string) {
	if c.baseURL == "" {
		return
	}
	if err := c.post("/api/errors", map[string]string{"message": message}); err != nil {
		log.Error("[COORDINATOR] Error notifying coordination API: ", err)
	}
}

func (c *httpClient) UploadToApi(confirmations []models.Submission) error {
	if c.baseURL == "" || len(confirmations) == 0 {
		return nil
	}
	return c.post("/api/confirmations", confirmations)
}

func (c *httpClient) UploadStatistic(progress []models.ProgressInfo) error {
	if c.baseURL == "" || len(progress) == 0 {
		return nil
	}
	return c.post("/api/progress", progress)
}

func (c *httpClient) post(path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bz, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("the http status code was not okay: %d, with a response of %s", resp.StatusCode, string(bz))
	}
	return nil
}
