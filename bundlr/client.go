package bundlr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/debridge-finance/oracle-node/models"
)

// Tag is one name/value pair attached to an uploaded payload.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client uploads signed submission payloads to a Bundlr node for permanent
// decentralized storage.
type Client interface {
	Upload(payload []byte, tags []Tag) (string, error)
	Configured() bool
}

type httpClient struct {
	nodeURL string
	client  *http.Client
}

type uploadRequest struct {
	Data string `json:"data"`
	Tags []Tag  `json:"tags"`
}

type uploadResponse struct {
	Id string `json:"id"`
}

// NewClient builds a Bundlr client from config. With no node URL configured,
// uploads return an empty transaction id without error.
func NewClient(config models.BundlrConfig) Client {
	return &httpClient{
		nodeURL: config.NodeURL,
		client: &http.Client{
			Timeout: time.Duration(config.TimeoutMillis) * time.Millisecond,
		},
	}
}

func (c *httpClient) Configured() bool {
	return c.nodeURL != ""
}

func (c *httpClient) Upload(payload []byte, tags []Tag) (string, error) {
	if c.nodeURL == "" {
		return "", nil
	}

	body, err := json.Marshal(uploadRequest{Data: string(payload), Tags: tags})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", c.nodeURL+"/tx", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("the http status code was not okay: %d, with a response of %s", resp.StatusCode, string(bz))
	}

	var res uploadResponse
	if err := json.Unmarshal(bz, &res); err != nil {
		return "", err
	}
	return res.Id, nil
}
