package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"policydesk/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "first forwarded address", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 172.16.0.1"}, want: "10.0.0.1"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 10.0.0.2 "}, want: "10.0.0.2"},
		{name: "remote addr without port", remote: "192.168.1.5:5432", want: "192.168.1.5"},
		{name: "ipv6 remote addr", remote: "[::1]:8080", want: "[::1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIPFromRequest(r))
		})
	}
}

func TestClientMetadata(t *testing.T) {
	const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	var gotIP, gotUA, gotDevice string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIP = requestcontext.ClientIP(r.Context())
		gotUA = requestcontext.UserAgent(r.Context())
		gotDevice = requestcontext.Device(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:1234"
	r.Header.Set("User-Agent", chromeOnWindows)
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "10.1.1.1", gotIP)
	assert.Equal(t, chromeOnWindows, gotUA)
	assert.Contains(t, gotDevice, "Chrome")
	assert.Contains(t, gotDevice, "Windows")
	assert.Empty(t, DescribeDevice(""))
}
