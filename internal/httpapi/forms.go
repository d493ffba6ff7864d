package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/splitledger/internal/apperr"
	"github.com/mmynk/splitledger/internal/media"
)

const (
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
	// maxFormMemory is the part of a multipart form kept in memory; the
	// rest spills to temp files.
	maxFormMemory = 32 << 20
	// imagesField is the multipart field carrying uploaded images.
	imagesField = "images"
)

// flexList decodes either a JSON array or a string holding a JSON array.
// Mobile clients send lists inside multipart forms as encoded strings.
type flexList[T any] struct {
	Items []T
	Set   bool
}

func (l *flexList[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		return l.parse(encoded)
	}
	if err := json.Unmarshal(data, &l.Items); err != nil {
		return err
	}
	l.Set = true
	return nil
}

func (l *flexList[T]) parse(encoded string) error {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &l.Items); err != nil {
		return err
	}
	l.Set = true
	return nil
}

// flexTime accepts a Unix timestamp or an RFC 3339 / date-only string.
type flexTime struct {
	Unix int64
	Set  bool
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return t.parse(s)
	}
	return t.parse(string(data))
}

func (t *flexTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Unix, t.Set = n, true
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Unix, t.Set = ts.Unix(), true
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

// decodeMultipart copies the text fields of a multipart form into a JSON
// object and decodes that into v, so both encodings share one request type.
// Fields named in numericFields must be finite numbers and are passed
// through as JSON numbers.
func decodeMultipart(r *http.Request, v any, numericFields ...string) error {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return apperr.Validation("invalid multipart form: %v", err)
	}
	numeric := make(map[string]bool, len(numericFields))
	for _, f := range numericFields {
		numeric[f] = true
	}

	fields := make(map[string]json.RawMessage)
	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		if numeric[key] {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			n, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				return apperr.Validation("field %s: %q is not a number", key, value)
			}
			value = strconv.FormatFloat(n, 'f', -1, 64)
			fields[key] = json.RawMessage(value)
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return apperr.Validation("field %s: %v", key, err)
		}
		fields[key] = encoded
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return apperr.Validation("invalid form fields: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("invalid form fields: %v", err)
	}
	return nil
}

// decodeBody decodes a JSON or multipart body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, numericFields ...string) error {
	if isMultipart(r) {
		return decodeMultipart(r, v, numericFields...)
	}
	return decodeJSON(w, r, v)
}

// formFiles opens the uploaded images of a parsed multipart form. The
// returned function closes them.
func formFiles(r *http.Request) ([]media.File, func(), error) {
	if r.MultipartForm == nil {
		return nil, func() {}, nil
	}
	headers := r.MultipartForm.File[imagesField]
	files := make([]media.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("failed to open upload %q: %w", h.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, media.File{
			Filename:    h.Filename,
			ContentType: h.Header.Get("Content-Type"),
			Size:        h.Size,
			Body:        f,
		})
	}
	return files, closeAll, nil
}
