package imagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxImageBytes = 32 << 20

// HTTPClient talks to the image storage service over its REST API.
type HTTPClient struct {
	baseURL         string
	client          *http.Client
	imageTimeout    time.Duration
	metadataTimeout time.Duration
	logger          zerolog.Logger
}

func NewHTTPClient(baseURL string, imageTimeout, metadataTimeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.ParseRequestURI(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid image storage base url %q", baseURL)
	}
	if imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}
	if metadataTimeout <= 0 {
		metadataTimeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:         baseURL,
		client:          &http.Client{},
		imageTimeout:    imageTimeout,
		metadataTimeout: metadataTimeout,
		logger:          logger,
	}, nil
}

func (c *HTTPClient) GetImage(ctx context.Context, path string) ([]byte, string, error) {
	p, err := cleanPath(path)
	if err != nil {
		return nil, "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.imageTimeout)
	defer cancel()

	resp, err := c.get(ctx, c.baseURL+"/api/images/"+p)
	if err != nil {
		c.logger.Error().Err(err).Str("path", p).Msg("get image failed")
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}

func (c *HTTPClient) ListImages(ctx context.Context, studentID uint64) ([]ImageEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	q := url.Values{"student_id": {strconv.FormatUint(studentID, 10)}}
	resp, err := c.get(ctx, c.baseURL+"/api/images/list?"+q.Encode())
	if err != nil {
		c.logger.Error().Err(err).Uint64("student_id", studentID).Msg("list images failed")
		return nil, err
	}
	defer resp.Body.Close()

	var out []ImageEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode image list: %w", err)
	}
	if out == nil {
		out = []ImageEntry{}
	}
	return out, nil
}

func (c *HTTPClient) GetMetadata(ctx context.Context, cardID int64) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	resp, err := c.get(ctx, fmt.Sprintf("%s/api/metadata/%d", c.baseURL, cardID))
	if err != nil {
		c.logger.Error().Err(err).Int64("card_id", cardID).Msg("get metadata failed")
		return Metadata{}, err
	}
	defer resp.Body.Close()

	var md Metadata
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}

// get issues a GET and turns non-2xx replies into errors. The caller closes
// the body on success.
func (c *HTTPClient) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("image storage returned %s", resp.Status)
	}
	return resp, nil
}
