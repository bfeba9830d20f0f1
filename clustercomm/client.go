// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clustercomm is the synchronous request/response channel between
// coordinators and data-bearing nodes.
package clustercomm

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"

	log "github.com/brennv/arangodb/logger"
)

type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusBackendUnavailable
	StatusError
)

// Result is the envelope of one synchronous request. Status classifies the
// transport outcome; Body is only meaningful for StatusOK and StatusError.
type Result struct {
	Status     Status
	StatusCode int
	Body       []byte
	ServerID   string
	ShardID    string
}

// Requester issues one synchronous request and never returns a nil result.
type Requester interface {
	SyncRequest(clientTxnID string, coordTxnID string, serverID string, method string, path string,
		body []byte, headers map[string]string, timeout time.Duration) *Result
}

// EndpointResolver maps a server id to its base HTTP endpoint.
type EndpointResolver interface {
	EndpointForServer(serverID string) (string, bool)
}

type HTTPRequester struct {
	resolver EndpointResolver
	client   *http.Client
}

func NewHTTPRequester(resolver EndpointResolver) *HTTPRequester {
	return &HTTPRequester{
		resolver: resolver,
		client:   &http.Client{},
	}
}

const (
	clientTxnHeader = "X-Arango-Client-Transaction-Id"
	coordTxnHeader  = "X-Arango-Coordinator-Transaction-Id"
)

func (h *HTTPRequester) SyncRequest(clientTxnID string, coordTxnID string, serverID string, method string,
	path string, body []byte, headers map[string]string, timeout time.Duration) *Result {
	res := &Result{ServerID: serverID}
	if shardID, ok := headers["Shard-Id"]; ok {
		res.ShardID = shardID
	}
	endpoint, ok := h.resolver.EndpointForServer(serverID)
	if !ok {
		res.Status = StatusBackendUnavailable
		return res
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
	if err != nil {
		res.Status = StatusBackendUnavailable
		log.Errorf("failed to build request to %s: %v", serverID, err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(clientTxnHeader, clientTxnID)
	req.Header.Set(coordTxnHeader, coordTxnID)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		res.Status = classifyTransportError(err)
		return res
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("failed to close response body: %v", err)
		}
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Status = StatusBackendUnavailable
		return res
	}
	res.StatusCode = resp.StatusCode
	res.Body = respBody
	if resp.StatusCode >= http.StatusBadRequest {
		res.Status = StatusError
	} else {
		res.Status = StatusOK
	}
	return res
}

func classifyTransportError(err error) Status {
	if pkgerrors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if pkgerrors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	return StatusBackendUnavailable
}
