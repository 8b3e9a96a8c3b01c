package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpAndDetailsFollowTheChain(t *testing.T) {
	up := NewUpstream("analyzer.Complete", "openai", "rate limited", http.StatusTooManyRequests, true, nil)
	wrapped := fmt.Errorf("batch 2: %w", up)

	assert.Equal(t, "analyzer.Complete", Op(wrapped))
	assert.Equal(t, map[string]any{
		"op": "analyzer.Complete", "msg": "rate limited", "system": "openai",
		"status": http.StatusTooManyRequests, "retryable": true,
	}, Details(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(wrapped))

	cfg := NewConfiguration("analyzer.NewModel", "OPENAI_API_KEY", "missing key")
	assert.Equal(t, "OPENAI_API_KEY", Details(cfg)["key"])

	plain := fmt.Errorf("boom")
	assert.Empty(t, Op(plain))
	assert.Nil(t, Details(plain))
	assert.Equal(t, "internal error", PublicMessage(plain))
}

func TestHTTPStatusByKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewValidation("op", "bad", nil), http.StatusBadRequest},
		{NewBiz("op", "limit reached", nil), http.StatusBadRequest},
		{NewUnauthorized("op", "Unauthorized"), http.StatusUnauthorized},
		{NewForbidden("op", "not yours"), http.StatusForbidden},
		{NewNotFound("op", "Campaign", "abc"), http.StatusNotFound},
		{NewConfiguration("op", "", "off"), http.StatusServiceUnavailable},
		{NewDB("op", "down", nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err), "%v", c.err)
	}
	assert.Equal(t, "Campaign not found", PublicMessage(NewNotFound("op", "Campaign", "abc")))
}
