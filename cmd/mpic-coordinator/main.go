// Command mpic-coordinator runs one MPIC core node: an HTTP endpoint
// that performs local CAA/DCV checks as one network perspective, and a
// coordinator endpoint that fans those checks out to the configured
// perspectives and returns a quorum-evaluated MpicResponse. Modeled on
// kevinburke-boulder/cmd/caa-checker/server.go's config-file-plus-flag
// startup shape, adapted from gRPC to plain HTTP/JSON since this core
// has no protobuf wire contract of its own.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/syslog"
	"net/http"
	"os"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/open-mpic/mpic-core-go/bdns"
	"github.com/open-mpic/mpic-core-go/blog"
	"github.com/open-mpic/mpic-core-go/caa"
	"github.com/open-mpic/mpic-core-go/coordinator"
	"github.com/open-mpic/mpic-core-go/core"
	"github.com/open-mpic/mpic-core-go/dcv"
	"github.com/open-mpic/mpic-core-go/metrics"
)

// config is the on-disk shape consumed by this node, per spec.md
// section 6's "configuration knobs consumed by the coordinator" plus
// the DNS resolver and listener settings every node needs regardless
// of whether it acts as a coordinator, a perspective, or both.
type config struct {
	Address                 string             `yaml:"address"`
	DNSResolver             string             `yaml:"dns_resolver"`
	DNSTimeoutSeconds       int                `yaml:"dns_timeout_seconds"`
	DNSMaxTries             int                `yaml:"dns_max_tries"`
	TargetPerspectives      []perspectiveConfig `yaml:"target_perspectives"`
	DefaultPerspectiveCount int                `yaml:"default_perspective_count"`
	GlobalMaxAttempts       int                `yaml:"global_max_attempts"`
	HashSecret              string             `yaml:"hash_secret"`
}

// perspectiveConfig names one remote perspective and the base URL its
// local /check endpoint is reachable at.
type perspectiveConfig struct {
	Code string `yaml:"code"`
	RIR  string `yaml:"rir"`
	URL  string `yaml:"url"`
}

func failOnError(err error, msg string) {
	if err != nil {
		blog.Get().Err(fmt.Sprintf("%s: %s", msg, err))
		os.Exit(1)
	}
}

func main() {
	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	configBytes, err := os.ReadFile(*configPath)
	failOnError(err, fmt.Sprintf("failed to read configuration file from %q", *configPath))
	var c config
	failOnError(yaml.Unmarshal(configBytes, &c), fmt.Sprintf("failed to parse configuration file from %q", *configPath))

	logWriter, err := syslog.New(syslog.LOG_INFO, "mpic-coordinator")
	if err == nil {
		logger, logErr := blog.New(logWriter, 6, 6)
		if logErr == nil {
			_ = blog.Set(logger)
		}
	}
	log := blog.Get()

	reg := prometheus.NewRegistry()
	scope := metrics.NewPromScope(reg,
		map[string][]string{"dns_lookup_errors_total": {"type"}},
		map[string][]string{"dns_lookup_seconds": {"type"}},
	)

	clk := clock.New()
	timeout := time.Duration(c.DNSTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxTries := c.DNSMaxTries
	if maxTries <= 0 {
		maxTries = 3
	}
	resolver := bdns.NewResolver(timeout, []string{c.DNSResolver}, scope, clk, maxTries)

	caaChecker := caa.New(resolver, log)
	dcvChecker := dcv.New(resolver, nil, clk, log)

	perspectives := make([]core.Perspective, 0, len(c.TargetPerspectives))
	urlByCode := make(map[string]string, len(c.TargetPerspectives))
	for _, p := range c.TargetPerspectives {
		perspectives = append(perspectives, core.Perspective{Code: p.Code, RIR: p.RIR})
		urlByCode[p.Code] = p.URL
	}

	coord := coordinator.New(
		coordinator.Config{
			TargetPerspectives:      perspectives,
			DefaultPerspectiveCount: c.DefaultPerspectiveCount,
			GlobalMaxAttempts:       c.GlobalMaxAttempts,
			HashSecret:              c.HashSecret,
		},
		httpRemoteCaller(urlByCode),
		clk,
		log,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/check", checkHandler(caaChecker, dcvChecker, clk))
	mux.HandleFunc("/coordinate", coordinateHandler(coord))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Info(fmt.Sprintf("mpic-coordinator listening on %s", c.Address))
	failOnError(http.ListenAndServe(c.Address, mux), "HTTP server failed")
}

// checkHandler runs one perspective's local CAA or DCV check against
// the request body, the role this node plays when another
// coordinator's RemoteCaller reaches it.
func checkHandler(caaChecker *caa.Checker, dcvChecker *dcv.Checker, clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var resp core.CheckResponse
		switch req.CheckType {
		case core.CheckTypeCAA:
			var caaReq caa.Request
			if req.CaaParams != nil {
				caaReq = caa.Request{Target: req.Target, CAADomains: req.CaaParams.CAADomains}
			} else {
				caaReq = caa.Request{Target: req.Target}
			}
			caaResp := caaChecker.Check(r.Context(), caaReq)
			resp = core.CheckResponse{
				CheckPassed: caaResp.CheckPassed,
				TimestampNS: clk.Now().UnixNano(),
				CaaDetails: &core.CaaDetails{
					CAARecordPresent: caaResp.CAARecordPresent,
					FoundAt:          caaResp.FoundAt,
					RecordsSeen:      caaResp.RecordsSeen,
				},
			}
			for _, e := range caaResp.Errors {
				resp.Errors = append(resp.Errors, core.MpicValidationError{ErrorType: "CAA_LOOKUP_ERROR", ErrorMessage: e})
			}
		case core.CheckTypeDCV:
			var params core.DcvCheckParameters
			if req.DcvParams != nil {
				params = *req.DcvParams
			}
			resp = dcvChecker.Check(r.Context(), req.Target, params)
		default:
			http.Error(w, fmt.Sprintf("unknown check_type %q", req.CheckType), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// coordinateHandler runs a full MpicRequest through the coordinator.
func coordinateHandler(coord *coordinator.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req core.MpicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp, err := coord.Coordinate(r.Context(), req)
		if err != nil {
			if ve, ok := err.(*coordinator.ValidationError); ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(ve.Issues)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// httpRemoteCaller builds the RemoteCaller that reaches each
// perspective over HTTP, per spec.md section 6's abstract
// "call(perspective, check_type, check_request) -> check_response"
// contract.
func httpRemoteCaller(urlByCode map[string]string) coordinator.RemoteCaller {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(ctx context.Context, p core.Perspective, checkType core.CheckType, req core.CheckRequest) (core.CheckResponse, error) {
		base, ok := urlByCode[p.Code]
		if !ok {
			return core.CheckResponse{}, fmt.Errorf("no URL configured for perspective %q", p.Code)
		}

		body, err := json.Marshal(req)
		if err != nil {
			return core.CheckResponse{}, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/check", bytes.NewReader(body))
		if err != nil {
			return core.CheckResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := client.Do(httpReq)
		if err != nil {
			return core.CheckResponse{}, err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return core.CheckResponse{}, fmt.Errorf("perspective %q returned status %d", p.Code, httpResp.StatusCode)
		}

		var resp core.CheckResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return core.CheckResponse{}, err
		}
		resp.PerspectiveCode = p.Code
		return resp, nil
	}
}
