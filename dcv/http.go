package dcv

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/open-mpic/mpic-core-go/berrors"
	"github.com/open-mpic/mpic-core-go/core"
)

// whitespaceCutset mirrors the teacher's whitespace trim set used
// when comparing a fetched payload against the expected value.
const whitespaceCutset = "\n\t "

func (c *Checker) checkHTTP(ctx context.Context, target string, params core.DcvCheckParameters) core.CheckResponse {
	initialURL, expected := buildHTTPRequest(target, params)
	prefixLen := expectedPrefixLen(expected)

	body, history, finalURL, statusCode, err := c.fetchWithRedirects(ctx, initialURL, params.HTTPHeaders, prefixLen)
	if err != nil {
		wireErr := berrors.DCVTransportError("fetching %s: %s", initialURL, err).WithWireType(fmt.Sprintf("%T", err))
		return core.CheckResponse{
			CheckPassed: false,
			Errors:      []core.MpicValidationError{wireErr.ToValidationError()},
			TimestampNS: c.Clock.Now().UnixNano(),
		}
	}

	details := &core.HTTPDetails{
		ResponseStatusCode: statusCode,
		ResponseURL:        finalURL,
		ResponseHistory:    history,
	}

	if statusCode != http.StatusOK {
		details.ResponsePage = base64.StdEncoding.EncodeToString(body.raw)
		wireErr := berrors.DCVTransportError("unexpected HTTP status fetching %s", finalURL).WithWireType(fmt.Sprintf("%d", statusCode))
		return core.CheckResponse{
			CheckPassed: false,
			Errors:      []core.MpicValidationError{wireErr.ToValidationError()},
			HTTPDetails: details,
			TimestampNS: c.Clock.Now().UnixNano(),
		}
	}

	details.ResponsePage = base64.StdEncoding.EncodeToString(body.raw)
	stripped := strings.Trim(body.decoded, whitespaceCutset)

	var passed bool
	switch params.ValidationMethod {
	case core.MethodAcmeHTTP01:
		passed = stripped == params.KeyAuthorization
	case core.MethodWebsiteChange:
		passed = strings.Contains(stripped, params.ChallengeValue)
		if passed && params.MatchRegex != "" {
			re, reErr := regexp.Compile(params.MatchRegex)
			passed = reErr == nil && re.MatchString(stripped)
		}
	}

	return core.CheckResponse{
		CheckPassed: passed,
		HTTPDetails: details,
		TimestampNS: c.Clock.Now().UnixNano(),
	}
}

// expectedPrefixLen implements spec.md section 4.3.1's
// max(100, len(expected)) body-read-length rule.
func expectedPrefixLen(expected string) int {
	if len(expected) > 100 {
		return len(expected)
	}
	return 100
}

func buildHTTPRequest(target string, params core.DcvCheckParameters) (initialURL, expected string) {
	switch params.ValidationMethod {
	case core.MethodAcmeHTTP01:
		return fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", target, params.Token), params.KeyAuthorization
	case core.MethodWebsiteChange:
		scheme := params.URLScheme
		if scheme == "" {
			scheme = "http"
		}
		return fmt.Sprintf("%s://%s/.well-known/pki-validation/%s", scheme, target, params.HTTPTokenPath), params.ChallengeValue
	default:
		return "", ""
	}
}

// httpBody holds the bounded raw prefix actually read off the wire
// alongside its charset-decoded form, per spec.md section 4.3.1: only
// max(100, len(expected)) bytes are ever read, never the full body.
type httpBody struct {
	raw     []byte
	decoded string
}

// fetchWithRedirects performs the GET, manually following redirects
// (rather than relying on the http.Client's own redirect following,
// which discards the intermediate status codes spec.md section 4.3.1
// requires in response_history) up to maxRedirect hops. Only the
// terminal, non-redirect response's body is read, and only up to
// prefixLen bytes of it.
func (c *Checker) fetchWithRedirects(ctx context.Context, initialURL string, headers map[string][]string, prefixLen int) (body httpBody, history []core.HTTPRedirectHop, finalURL string, statusCode int, err error) {
	currentURL := initialURL
	for hop := 0; hop < maxRedirect; hop++ {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if reqErr != nil {
			return httpBody{}, history, currentURL, 0, reqErr
		}
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, doErr := c.HTTPClient.Do(req)
		if doErr != nil {
			return httpBody{}, history, currentURL, 0, doErr
		}

		if isRedirect(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			history = append(history, core.HTTPRedirectHop{StatusCode: resp.StatusCode, URL: currentURL})
			resp.Body.Close()
			next, parseErr := resolveRedirect(currentURL, loc)
			if parseErr != nil {
				return httpBody{}, history, currentURL, resp.StatusCode, parseErr
			}
			currentURL = next
			continue
		}

		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(prefixLen)))
		resp.Body.Close()
		if readErr != nil {
			return httpBody{}, history, currentURL, resp.StatusCode, readErr
		}
		charset := charsetFromContentType(resp.Header.Get("Content-Type"))
		decoded := decodeCharset(raw, charset)
		return httpBody{raw: raw, decoded: decoded}, history, currentURL, resp.StatusCode, nil
	}
	return httpBody{}, history, currentURL, 0, fmt.Errorf("dcv: too many redirects (max %d)", maxRedirect)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}

func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// decodeCharset decodes b according to charset (an IANA charset name
// as found in a Content-Type header). An empty or unrecognized
// charset is treated as already-UTF-8, matching net/http's own
// behavior when no charset is declared.
func decodeCharset(b []byte, charset string) string {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return string(b)
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(b)
	}
	decoded, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(decoded)
}
