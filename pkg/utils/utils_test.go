package utils

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashIdentity(t *testing.T) {
	a := HashIdentity("Owner@Example.com ")
	b := HashIdentity("owner@example.com")

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, HashIdentity("203.0.113.7"))
}

func TestSeed(t *testing.T) {
	assert.Equal(t, Seed("meta", "https://a.example"), Seed("meta", "https://a.example"))
	assert.NotEqual(t, Seed("meta", "ab"), Seed("meta", "a", "b"))
}

func TestDataURLRoundTrip(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	u := EncodeDataURL("image/png", raw)

	assert.True(t, IsDataURL(u))
	mediaType, data, err := ParseDataURL(u)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, raw, data)
	assert.GreaterOrEqual(t, DataURLSize(u), len(raw))
}

func TestParseDataURL_Invalid(t *testing.T) {
	tests := []string{
		"https://example.com/a.png",
		"data:image/png,notbase64",
		"data:image/png;base64",
		"data:image/png;base64,***",
	}
	for _, in := range tests {
		_, _, err := ParseDataURL(in)
		assert.ErrorIs(t, err, ErrInvalidDataURL, in)
	}
}

func TestImageRef(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/ad.png", ImageRef("https://cdn.example.com/ad.png"))

	upload := EncodeDataURL("image/png", make([]byte, 4096))
	ref := ImageRef(upload)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, ref)
	assert.Equal(t, ref, ImageRef(upload))
	assert.NotEqual(t, ref, ImageRef(EncodeDataURL("image/png", []byte{1})))
}

// ============================================================================
// Outbound address guard
// ============================================================================

func TestIsPublicIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:4700::1111", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.9", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"100.64.0.1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPublicIP(net.ParseIP(tt.ip)))
		})
	}
	assert.False(t, IsPublicIP(nil))
}

func TestNewPublicHTTPClient_RefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("internal"))
	}))
	defer srv.Close()

	resp, err := NewPublicHTTPClient(time.Second).Get(srv.URL)
	if resp != nil {
		resp.Body.Close()
	}
	assert.ErrorIs(t, err, ErrNonPublicAddress)
}

func TestCheckPublicURL(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, CheckPublicURL(ctx, "https://93.184.216.34/landing"))
	assert.ErrorIs(t, CheckPublicURL(ctx, "http://127.0.0.1:8080/admin"), ErrNonPublicAddress)
	assert.ErrorIs(t, CheckPublicURL(ctx, "http://[::1]/"), ErrNonPublicAddress)
	assert.ErrorIs(t, CheckPublicURL(ctx, "http://169.254.169.254/latest/meta-data"), ErrNonPublicAddress)
	assert.Error(t, CheckPublicURL(ctx, "not a url"))
}
