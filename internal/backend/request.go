package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/atspilot/atspilot/internal/logger"

	"go.uber.org/zap"
)

// maxErrorBodyLength caps how much of a non-json error body is carried into
// the returned error message.
const maxErrorBodyLength = 512

// RunPayload is the multipart body submitted when creating a run.
type RunPayload struct {
	FileName string
	File     io.Reader
	// JDText is the job description for jd_match runs.
	JDText string
}

func (c *Client) postMultipart(ctx context.Context, url string, mode Mode, payload *RunPayload) (map[string]any, error) {
	var b bytes.Buffer

	w := multipart.NewWriter(&b)

	name := payload.FileName
	if name == "" {
		name = "resume.pdf"
	}

	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}

	if _, err = io.Copy(part, payload.File); err != nil {
		return nil, err
	}

	if err = w.WriteField("mode", string(mode)); err != nil {
		return nil, err
	}

	if payload.JDText != "" {
		if err = w.WriteField("jdText", payload.JDText); err != nil {
			return nil, err
		}
	}

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &b)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req)
}

func (c *Client) getJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// do executes the request and decodes the response body into a generic map.
// The body is decoded even on a non-2xx status so a server-provided error
// message can be surfaced instead of a bare status line.
func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("User-Agent", c.UserAgent)

	c.logger.Debug("backend request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var body map[string]any
	if len(data) > 0 {
		// A malformed body is tolerated; status handling below decides
		// whether that matters.
		_ = json.Unmarshal(data, &body)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if msg := ErrorMessage(body, ""); msg != "" {
			return nil, fmt.Errorf("%s", msg)
		}

		if text := logger.Truncate(string(data), maxErrorBodyLength); text != "" {
			return nil, fmt.Errorf("%s", text)
		}

		return nil, fmt.Errorf("request failed (%d)", resp.StatusCode)
	}

	return body, nil
}
