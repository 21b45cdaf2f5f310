package req

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"moviechat/internal/pkg/errs"
)

type titleInput struct {
	Title string `json:"title"`
}

func (in *titleInput) Validate() error {
	switch {
	case in.Title == "":
		return errors.New("title required")
	case in.Title == "long":
		return errs.NewError(errs.ErrMessageContentTooLong, 5)
	}
	return nil
}

type plainInput struct {
	Value int `json:"value"`
}

func newRequest(contentType, body string) (*httptest.ResponseRecorder, *http.Request) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return httptest.NewRecorder(), r
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		dst         any
		wantCode    int
	}{
		{name: "valid", contentType: "application/json", body: `{"title":"Heat"}`, dst: &titleInput{}},
		{name: "charset suffix", contentType: "application/json; charset=utf-8", body: `{"value":3}`, dst: &plainInput{}},
		{name: "wrong content type", contentType: "text/plain", body: `{"value":3}`, dst: &plainInput{}, wantCode: errs.ErrUnsupportedMediaType},
		{name: "malformed", contentType: "application/json", body: `{"value":`, dst: &plainInput{}, wantCode: errs.ErrInvalidJSONFormat},
		{name: "unknown field", contentType: "application/json", body: `{"value":3,"extra":1}`, dst: &plainInput{}, wantCode: errs.ErrInvalidJSONFormat},
		{name: "trailing document", contentType: "application/json", body: `{"value":3}{"value":4}`, dst: &plainInput{}, wantCode: errs.ErrExtraContentInBody},
		{name: "plain validation error", contentType: "application/json", body: `{"title":""}`, dst: &titleInput{}, wantCode: errs.ErrInvalidParams},
		{name: "coded validation error", contentType: "application/json", body: `{"title":"long"}`, dst: &titleInput{}, wantCode: errs.ErrMessageContentTooLong},
		{name: "too large", contentType: "application/json", body: `{"title":"` + strings.Repeat("x", int(MaxBodySize)) + `"}`, dst: &titleInput{}, wantCode: errs.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, r := newRequest(tt.contentType, tt.body)
			customErr := BindJSON(w, r, tt.dst)

			if tt.wantCode == 0 {
				assert.Nil(t, customErr)
				return
			}
			if assert.NotNil(t, customErr) {
				assert.Equal(t, tt.wantCode, customErr.Code)
			}
		})
	}
}
