package discovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func linkedinRules() BlockRules {
	return BlockRules{
		StatusCodes:    []int{403, 429, 999},
		ChallengePaths: []string{"/checkpoint/"},
		BodyPhrases: []string{
			"security verification",
			"verify you are a human",
			"unusual activity",
			"captcha",
		},
		TransportSignatures: []string{
			"err_http2_protocol_error",
			"net::err_connection_reset",
		},
	}
}

func TestDetectorBlockedStatusCodes(t *testing.T) {
	t.Parallel()

	d := NewDetector(linkedinRules())

	tests := []struct {
		name    string
		status  int
		body    string
		url     string
		blocked bool
	}{
		{name: "ok page", status: 200, body: "<ul><li>job</li></ul>", url: "https://example.com/jobs", blocked: false},
		{name: "forbidden", status: 403, blocked: true},
		{name: "rate limited", status: 429, blocked: true},
		{name: "bespoke challenge code", status: 999, blocked: true},
		{name: "server error is not a block here", status: 500, blocked: false},
		{name: "checkpoint redirect", status: 200, url: "https://example.com/checkpoint/challenge", blocked: true},
		{name: "verification phrase", status: 200, body: "<p>Security Verification required</p>", blocked: true},
		{name: "captcha phrase case-insensitive", status: 200, body: "solve this CAPTCHA to continue", blocked: true},
		{name: "unusual activity phrase", status: 200, body: "we noticed unusual activity", blocked: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.blocked, d.Blocked(tc.status, tc.body, tc.url))
		})
	}
}

func TestDetectorTransportBlocked(t *testing.T) {
	t.Parallel()

	d := NewDetector(linkedinRules())

	require.True(t, d.TransportBlocked(errors.New("page.goto: net::ERR_CONNECTION_RESET")))
	require.True(t, d.TransportBlocked(errors.New("ERR_HTTP2_PROTOCOL_ERROR at edge")))
	require.False(t, d.TransportBlocked(errors.New("dial tcp: i/o timeout")))
	require.False(t, d.TransportBlocked(nil))
}

func TestDetectorEmptyRules(t *testing.T) {
	t.Parallel()

	d := NewDetector(BlockRules{})
	require.False(t, d.Blocked(403, "captcha", "/checkpoint/"))
	require.False(t, d.TransportBlocked(errors.New("net::ERR_CONNECTION_RESET")))
}
