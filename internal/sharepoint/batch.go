// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package sharepoint

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrBatchExecuted = errors.New("batch already executed")

// FormValue is a single field assignment sent to AddValidateUpdateItemUsingPath.
type FormValue struct {
	FieldName  string `json:"FieldName"`
	FieldValue string `json:"FieldValue"`
}

// FieldResult is the per-field outcome of a validated item write.
// ErrorMessage is nil when the field was accepted.
type FieldResult struct {
	ErrorCode    int     `json:"ErrorCode"`
	ErrorMessage *string `json:"ErrorMessage"`
	FieldName    string  `json:"FieldName"`
	FieldValue   string  `json:"FieldValue"`
	HasException bool    `json:"HasException"`
	ItemID       int     `json:"ItemId"`
}

// Pending is the eventual result of one request queued on a Batch.
// It resolves when the batch is executed.
type Pending struct {
	done    chan struct{}
	once    sync.Once
	results []FieldResult
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(results []FieldResult, err error) {
	p.once.Do(func() {
		p.results = results
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the owning batch has been executed or ctx is done.
func (p *Pending) Wait(ctx context.Context) ([]FieldResult, error) {
	select {
	case <-p.done:
		return p.results, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type batchRequest struct {
	method  string
	url     string
	body    []byte
	pending *Pending
}

// Batch collects write requests and submits them as one $batch request.
type Batch struct {
	client   *Client
	mu       sync.Mutex
	requests []*batchRequest
	executed bool
}

// NewBatch starts an empty batch bound to c.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// Len returns the number of queued requests.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

// AddValidateUpdateItemUsingPath queues the creation of one item in folderPath
// (server-relative, e.g. /sites/ops/Lists/Tasks) of the given list.
func (b *Batch) AddValidateUpdateItemUsingPath(listID, folderPath string, values []FormValue) *Pending {
	p := newPending()

	if listID == "" {
		p.resolve(nil, ErrEmptyListID)
		return p
	}
	if values == nil {
		values = []FormValue{}
	}

	payload := map[string]any{
		"listItemCreateInfo": map[string]any{
			"FolderPath":           map[string]string{"DecodedUrl": folderPath},
			"UnderlyingObjectType": 0,
		},
		"formValues":         values,
		"bNewDocumentUpdate": false,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.resolve(nil, fmt.Errorf("marshal error: %w", err))
		return p
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.executed {
		p.resolve(nil, ErrBatchExecuted)
		return p
	}
	b.requests = append(b.requests, &batchRequest{
		method:  http.MethodPost,
		url:     b.client.apiURL(listPath(listID) + "/AddValidateUpdateItemUsingPath()"),
		body:    body,
		pending: p,
	})
	return p
}

// Execute submits every queued request in a single HTTP call and resolves each
// Pending with its own outcome. A transport or envelope failure is returned and
// also delivered to every Pending. Execute may only be called once.
func (b *Batch) Execute(ctx context.Context) error {
	b.mu.Lock()
	if b.executed {
		b.mu.Unlock()
		return ErrBatchExecuted
	}
	b.executed = true
	reqs := b.requests
	b.mu.Unlock()

	if len(reqs) == 0 {
		return nil
	}

	err := b.execute(ctx, reqs)
	if err != nil {
		for _, r := range reqs {
			r.pending.resolve(nil, err)
		}
	}
	return err
}

func (b *Batch) execute(ctx context.Context, reqs []*batchRequest) error {
	c := b.client

	body, contentType, err := encodeBatch(reqs)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("$batch"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "multipart/mixed")
	if err := c.authorize(ctx, req); err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return newHTTPError(resp.StatusCode, data)
	}

	responses, err := decodeBatchResponse(resp.Header.Get("Content-Type"), resp.Body)
	if err != nil {
		return fmt.Errorf("decode batch response: %w", err)
	}

	c.logger.Debug("Batch executed",
		zap.Int("requests", len(reqs)),
		zap.Int("responses", len(responses)),
		zap.Duration("elapsed", time.Since(start)))

	if len(responses) != len(reqs) {
		c.logger.Warn("Batch response count mismatch",
			zap.Int("requests", len(reqs)),
			zap.Int("responses", len(responses)))
	}

	for i, r := range reqs {
		if i >= len(responses) {
			r.pending.resolve(nil, fmt.Errorf("no response for batch request %d", i+1))
			continue
		}
		r.pending.resolve(parseItemResponse(responses[i]))
	}
	return nil
}

// encodeBatch renders requests as multipart/mixed, one changeset per write.
func encodeBatch(reqs []*batchRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	batch := multipart.NewWriter(&buf)
	if err := batch.SetBoundary("batch_" + uuid.NewString()); err != nil {
		return nil, "", err
	}

	for _, r := range reqs {
		var cs bytes.Buffer
		changeset := multipart.NewWriter(&cs)
		if err := changeset.SetBoundary("changeset_" + uuid.NewString()); err != nil {
			return nil, "", err
		}

		part, err := changeset.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"application/http"},
			"Content-Transfer-Encoding": {"binary"},
		})
		if err != nil {
			return nil, "", err
		}
		fmt.Fprintf(part, "%s %s HTTP/1.1\r\n", r.method, r.url)
		fmt.Fprintf(part, "Accept: %s\r\n", acceptNoMetadata)
		fmt.Fprintf(part, "Content-Type: %s\r\n", acceptNoMetadata)
		fmt.Fprintf(part, "Content-Length: %d\r\n\r\n", len(r.body))
		if _, err := part.Write(r.body); err != nil {
			return nil, "", err
		}
		if err := changeset.Close(); err != nil {
			return nil, "", err
		}

		outer, err := batch.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"multipart/mixed; boundary=" + changeset.Boundary()},
		})
		if err != nil {
			return nil, "", err
		}
		if _, err := outer.Write(cs.Bytes()); err != nil {
			return nil, "", err
		}
	}

	if err := batch.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/mixed; boundary=" + batch.Boundary(), nil
}

type batchResponse struct {
	status int
	body   []byte
}

// decodeBatchResponse flattens a (possibly changeset-nested) multipart
// response into embedded HTTP responses, in order.
func decodeBatchResponse(contentType string, body io.Reader) ([]batchResponse, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("invalid content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("unexpected content type %q", mediaType)
	}
	return readParts(multipart.NewReader(body, params["boundary"]))
}

func readParts(mr *multipart.Reader) ([]batchResponse, error) {
	var out []batchResponse
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			return nil, fmt.Errorf("invalid part content type: %w", err)
		}

		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			nested, err := readParts(multipart.NewReader(part, params["boundary"]))
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case mediaType == "application/http":
			resp, err := http.ReadResponse(bufio.NewReader(part), nil)
			if err != nil {
				return nil, fmt.Errorf("read embedded response: %w", err)
			}
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read embedded response body: %w", err)
			}
			out = append(out, batchResponse{status: resp.StatusCode, body: data})
		}
	}
}

// parseItemResponse accepts both nometadata ({"value": [...]}) and verbose
// ({"d": {"AddValidateUpdateItemUsingPath": {"results": [...]}}}) payloads.
func parseItemResponse(r batchResponse) ([]FieldResult, error) {
	if r.status >= 400 {
		return nil, newHTTPError(r.status, r.body)
	}

	var payload struct {
		Value []FieldResult `json:"value"`
		D     struct {
			Add struct {
				Results []FieldResult `json:"results"`
			} `json:"AddValidateUpdateItemUsingPath"`
		} `json:"d"`
	}
	if err := json.Unmarshal(r.body, &payload); err != nil {
		return nil, fmt.Errorf("decode item response: %w", err)
	}
	if payload.Value != nil {
		return payload.Value, nil
	}
	return payload.D.Add.Results, nil
}
