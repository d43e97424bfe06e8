// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/netSkope/list-import-tool/internal/sharepoint"
)

const (
	testListID = "5f0c1d2e-7a8b-4c9d-8e0f-112233445566"
	testToken  = "site-token"
)

// fakeSite is a minimal list site: one list with Title (required), Qty
// (number) and a read-only ID. Items titled "explode" fail the whole batch.
type fakeSite struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	batches int
	items   []map[string]string
}

func newFakeSite(t *testing.T) *fakeSite {
	s := &fakeSite{t: t}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeSite) URL() string { return s.srv.URL + "/sites/ops" }

func (s *fakeSite) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

func (s *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+testToken {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":{"value":"Access denied."}}}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/fields"):
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []sharepoint.Field{
			{InternalName: "Title", Title: "Title", Required: true, TypeAsString: "Text", FieldTypeKind: sharepoint.FieldText},
			{InternalName: "Qty", Title: "Quantity", TypeAsString: "Number", FieldTypeKind: sharepoint.FieldNumber},
			{InternalName: "ID", Title: "ID", TypeAsString: "Counter", FieldTypeKind: sharepoint.FieldCounter, ReadOnlyField: true},
		}})
	case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/_api/web/lists(guid'"+testListID+"')"):
		_ = json.NewEncoder(w).Encode(sharepoint.List{Title: "Tasks", ParentWebURL: "/sites/ops"})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/_api/$batch"):
		s.serveBatch(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"List does not exist."}}`))
	}
}

func (s *fakeSite) serveBatch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.batches++
	s.mu.Unlock()

	var bodies [][]byte
	if err := eachEmbeddedRequest(r, func(req *http.Request) error {
		data, err := io.ReadAll(req.Body)
		bodies = append(bodies, data)
		return err
	}); err != nil {
		s.t.Errorf("bad batch request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var replies [][]sharepoint.FieldResult
	for _, body := range bodies {
		var item struct {
			FormValues []sharepoint.FormValue `json:"formValues"`
		}
		if err := json.Unmarshal(body, &item); err != nil {
			s.t.Errorf("bad item body: %v", err)
		}
		values := map[string]string{}
		for _, fv := range item.FormValues {
			values[fv.FieldName] = fv.FieldValue
		}
		if values["Title"] == "explode" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"Unexpected server error."}}`))
			return
		}
		replies = append(replies, validate(item.FormValues, values))

		s.mu.Lock()
		s.items = append(s.items, values)
		s.mu.Unlock()
	}

	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())
	for _, results := range replies {
		var cs bytes.Buffer
		csw := multipart.NewWriter(&cs)
		part, _ := csw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/http"}})
		data, _ := json.Marshal(map[string]any{"value": results})
		fmt.Fprintf(part, "HTTP/1.1 200 OK\r\nContent-Type: application/json;odata=nometadata\r\n\r\n%s", data)
		_ = csw.Close()

		outer, _ := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"multipart/mixed; boundary=" + csw.Boundary()}})
		_, _ = outer.Write(cs.Bytes())
	}
	_ = mw.Close()
}

func validate(submitted []sharepoint.FormValue, values map[string]string) []sharepoint.FieldResult {
	var out []sharepoint.FieldResult
	if _, ok := values["Title"]; !ok {
		msg := "Required"
		out = append(out, sharepoint.FieldResult{FieldName: "Title", ErrorMessage: &msg, HasException: true})
	}
	for _, fv := range submitted {
		res := sharepoint.FieldResult{FieldName: fv.FieldName, FieldValue: fv.FieldValue}
		if fv.FieldName == "Qty" {
			if _, err := strconv.ParseFloat(fv.FieldValue, 64); err != nil {
				msg := "Invalid number"
				res.ErrorMessage = &msg
				res.HasException = true
			}
		}
		out = append(out, res)
	}
	return out
}

func eachEmbeddedRequest(r *http.Request, fn func(*http.Request) error) error {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	var walk func(mr *multipart.Reader) error
	walk = func(mr *multipart.Reader) error {
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			mediaType, p, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if err != nil {
				return err
			}
			if strings.HasPrefix(mediaType, "multipart/") {
				if err := walk(multipart.NewReader(part, p["boundary"])); err != nil {
					return err
				}
				continue
			}
			req, err := http.ReadRequest(bufio.NewReader(part))
			if err != nil {
				return err
			}
			if err := fn(req); err != nil {
				return err
			}
		}
	}
	return walk(multipart.NewReader(r.Body, params["boundary"]))
}
