package mocks

import (
	"errors"
	"io"
	"net/http"
	"strings"
)

// MockClient fakes the one http.Client method the program library
// loader uses.
type MockClient struct {
	Contents   string // body to send back
	Url        string // when set, requests for other urls 404
	Err        error
	StatusCode int
}

func (mc *MockClient) Get(url string) (*http.Response, error) {
	if mc.Err != nil {
		return nil, mc.Err
	}
	if mc.Url != "" && mc.Url != url {
		return &http.Response{Status: "404 Not Found", StatusCode: 404},
			errors.New("URL not found")
	}
	code := mc.StatusCode
	if code == 0 {
		code = 200
	}
	return &http.Response{
		Status:     "200 OK",
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(mc.Contents)),
	}, nil
}
