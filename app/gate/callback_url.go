package gate

import (
	"errors"
	"net/url"
	"strings"
)

var ErrCallbackURLNotConfigured = errors.New("callback base url is not configured")

type CallbackURLBuilder interface {
	Build(gateCode, token string) (string, error)
}

// PathCallbackURLBuilder builds {base}/callbacks/{gate}/{token}.
type PathCallbackURLBuilder struct {
	BaseURL string
}

func NewPathCallbackURLBuilder(baseURL string) *PathCallbackURLBuilder {
	return &PathCallbackURLBuilder{BaseURL: baseURL}
}

func (b *PathCallbackURLBuilder) Build(gateCode, token string) (string, error) {
	baseURL := strings.TrimSpace(strings.TrimRight(b.BaseURL, "/"))
	gateCode = strings.TrimSpace(gateCode)
	token = strings.TrimSpace(token)
	if baseURL == "" {
		return "", ErrCallbackURLNotConfigured
	}
	if gateCode == "" || token == "" {
		return "", errors.New("gate code and token are required")
	}
	return baseURL + "/callbacks/" + url.PathEscape(gateCode) + "/" + url.PathEscape(token), nil
}
