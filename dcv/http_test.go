package dcv

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/open-mpic/mpic-core-go/blog"
	"github.com/open-mpic/mpic-core-go/core"
	"github.com/open-mpic/mpic-core-go/internal/test"
)

// fakeRoundTripper serves fixed bodies/status codes keyed by request
// path, standing in for a real server without opening a socket.
type fakeRoundTripper struct {
	byPath map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
	header http.Header
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, ok := f.byPath[req.URL.Path]
	if !ok {
		resp = fakeResponse{status: http.StatusNotFound, body: "not found"}
	}
	header := resp.header
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: resp.status,
		Body:       io.NopCloser(bytes.NewBufferString(resp.body)),
		Header:     header,
		Request:    req,
	}, nil
}

func newTestChecker(byPath map[string]fakeResponse) *Checker {
	client := &http.Client{Transport: &fakeRoundTripper{byPath: byPath}}
	return New(nil, client, clock.NewFake(), blog.Get())
}

// TestCheckHTTPWebsiteChangeSubstring grounds spec.md's end-to-end
// scenario 4: a 200 response whose body contains the challenge value
// as a substring passes.
func TestCheckHTTPWebsiteChangeSubstring(t *testing.T) {
	c := newTestChecker(map[string]fakeResponse{
		"/.well-known/pki-validation/token123": {status: http.StatusOK, body: "eXtRaStUfFchallenge-valueMoReStUfF"},
	})

	resp := c.checkHTTP(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodWebsiteChange,
		HTTPTokenPath:    "token123",
		ChallengeValue:   "challenge-value",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, true, "check_passed")
	test.AssertEquals(t, resp.HTTPDetails.ResponseStatusCode, http.StatusOK)
}

// TestCheckHTTPAcmeFailsOnExtraContent grounds scenario 5: an
// ACME_HTTP_01 response must equal the key authorization exactly
// (after whitespace trimming), not merely contain it.
func TestCheckHTTPAcmeFailsOnExtraContent(t *testing.T) {
	c := newTestChecker(map[string]fakeResponse{
		"/.well-known/acme-challenge/tok": {status: http.StatusOK, body: "eXtRaStUfFchallenge_111MoReStUfF"},
	})

	resp := c.checkHTTP(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodAcmeHTTP01,
		Token:            "tok",
		KeyAuthorization: "challenge_111",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, false, "check_passed")
}

func TestCheckHTTPAcmePassesOnExactMatch(t *testing.T) {
	c := newTestChecker(map[string]fakeResponse{
		"/.well-known/acme-challenge/tok": {status: http.StatusOK, body: "  challenge_111\n"},
	})

	resp := c.checkHTTP(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodAcmeHTTP01,
		Token:            "tok",
		KeyAuthorization: "challenge_111",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, true, "check_passed after whitespace trim")
}

func TestCheckHTTPNon200ReportsStatus(t *testing.T) {
	c := newTestChecker(map[string]fakeResponse{})

	resp := c.checkHTTP(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodAcmeHTTP01,
		Token:            "missing",
		KeyAuthorization: "whatever",
	})

	test.AssertBoolEquals(t, resp.CheckPassed, false, "check_passed")
	test.AssertEquals(t, resp.HTTPDetails.ResponseStatusCode, http.StatusNotFound)
	if len(resp.Errors) != 1 || resp.Errors[0].ErrorType != "404" {
		t.Fatalf("unexpected errors: %v", resp.Errors)
	}
}

// TestExpectedPrefixLenBoundsBodyRead grounds the 1000-byte-body /
// 10-byte-challenge boundary behavior from spec.md section 8: only the
// first 100 bytes are ever read and reported, base64-encoded.
func TestExpectedPrefixLenBoundsBodyRead(t *testing.T) {
	longBody := strings.Repeat("a", 1000)
	c := newTestChecker(map[string]fakeResponse{
		"/.well-known/pki-validation/tok": {status: http.StatusOK, body: longBody},
	})

	resp := c.checkHTTP(context.Background(), "example.com", core.DcvCheckParameters{
		ValidationMethod: core.MethodWebsiteChange,
		HTTPTokenPath:    "tok",
		ChallengeValue:   "aaaaaaaaaa",
	})

	raw, err := base64DecodeResponsePage(resp.HTTPDetails.ResponsePage)
	test.AssertNotError(t, err, "decode response_page")
	test.AssertEquals(t, len(raw), 100)
}

func TestExpectedPrefixLenGrowsWithChallenge(t *testing.T) {
	challenge := strings.Repeat("b", 150)
	test.AssertEquals(t, expectedPrefixLen(challenge), 150)
	test.AssertEquals(t, expectedPrefixLen("short"), 100)
}

func base64DecodeResponsePage(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
