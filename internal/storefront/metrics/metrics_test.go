/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func TestRecordCartOperation(t *testing.T) {
	okBefore := getCounterValue(CartOperationsTotal, "add", "ok")
	errBefore := getCounterValue(CartOperationsTotal, "add", "error")

	RecordCartOperation("add", 3*time.Millisecond, nil)
	RecordCartOperation("add", 3*time.Millisecond, errors.New("boom"))

	if got := getCounterValue(CartOperationsTotal, "add", "ok"); got != okBefore+1 {
		t.Errorf("expected ok counter %v, got %v", okBefore+1, got)
	}
	if got := getCounterValue(CartOperationsTotal, "add", "error"); got != errBefore+1 {
		t.Errorf("expected error counter %v, got %v", errBefore+1, got)
	}
}

func TestRecordHTTPRequestUnmatchedRoute(t *testing.T) {
	before := getCounterValue(HTTPRequestsTotal, "GET", "unmatched", "404")
	RecordHTTPRequest("GET", "", http.StatusNotFound, time.Millisecond)
	if got := getCounterValue(HTTPRequestsTotal, "GET", "unmatched", "404"); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestHandlerExposesStorefrontMetrics(t *testing.T) {
	RateLimitRejectionsTotal.WithLabelValues("auth").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `storefront_ratelimit_rejections_total{class="auth"}`) {
		t.Fatalf("expected rate limit metric in output:\n%s", body)
	}
}
