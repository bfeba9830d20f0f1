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

// Package api serves the cluster-internal AQL cursor endpoints a data node
// exposes to coordinators: /_db/<db>/_api/aql/<operation>/<queryID>.
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/brennv/arangodb/aql"
	"github.com/brennv/arangodb/common"
	"github.com/brennv/arangodb/errors"
	log "github.com/brennv/arangodb/logger"
	"github.com/brennv/arangodb/rowbatch"
)

// RegisteredQuery is one live remote query: the cursor chain a coordinator
// drives through the endpoints.
type RegisteredQuery struct {
	Query *aql.Query
	Root  aql.ExecutionBlock
}

type Server struct {
	lock          sync.Mutex
	listenAddress string
	listener      net.Listener
	httpServer    *http.Server
	queries       sync.Map
	started       bool
}

func NewServer(listenAddress string) *Server {
	return &Server{
		listenAddress: listenAddress,
	}
}

func (s *Server) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started {
		return nil
	}
	listener, err := net.Listen("tcp", s.listenAddress)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler()}
	common.Go(func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Errorf("aql api server failed: %v", err)
		}
	})
	s.started = true
	log.Infof("aql api server listening on %s", listener.Addr().String())
	return nil
}

func (s *Server) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.httpServer.Close()
}

func (s *Server) ListenAddress() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.listenAddress
}

func (s *Server) RegisterQuery(queryID string, registered *RegisteredQuery) {
	s.queries.Store(queryID, registered)
}

func (s *Server) UnregisterQuery(queryID string) {
	s.queries.Delete(queryID)
}

// Handler returns the http handler so tests can mount it directly.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// handle routes /_db/<db>/_api/aql/<operation>/<queryID>.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 6 || parts[0] != "_db" || parts[2] != "_api" || parts[3] != "aql" {
		http.NotFound(w, r)
		return
	}
	operation := parts[4]
	queryID := parts[5]

	registered, ok := s.queries.Load(queryID)
	if !ok {
		writeError(w, errors.NewAQLErrorf(errors.QueryNotFound, "query with id %s not found", queryID))
		return
	}
	query := registered.(*RegisteredQuery)

	switch operation {
	case "initialize":
		s.handleControl(w, r, query.Root.Initialize)
	case "initializeCursor":
		s.handleInitializeCursor(w, r, query)
	case "shutdown":
		s.handleShutdown(w, r, query, queryID)
	case "getSome":
		s.handleGetSome(w, r, query)
	case "skipSome":
		s.handleSkipSome(w, r, query)
	case "hasMore":
		s.handleHasMore(w, r, query)
	case "count":
		s.handleCount(w, r, query)
	case "remaining":
		s.handleRemaining(w, r, query)
	default:
		http.NotFound(w, r)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, op func() error) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	if err := op(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "code": 0})
}

type initializeCursorRequest struct {
	Exhausted bool           `json:"exhausted"`
	Pos       int            `json:"pos"`
	Items     *rowbatch.Wire `json:"items"`
}

func (s *Server) handleInitializeCursor(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req initializeCursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAQLError(errors.AQLCommunication, "malformed initializeCursor body"))
		return
	}
	var items *rowbatch.Batch
	if !req.Exhausted && req.Items != nil {
		batch, err := rowbatch.FromWire(*req.Items)
		if err != nil {
			writeError(w, errors.NewAQLError(errors.AQLCommunication, "malformed seed batch"))
			return
		}
		items = batch
	}
	if err := query.Root.InitializeCursor(items, req.Pos); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "code": 0})
}

type shutdownRequest struct {
	Code int `json:"code"`
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request, query *RegisteredQuery, queryID string) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req shutdownRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAQLError(errors.AQLCommunication, "malformed shutdown body"))
		return
	}
	err := query.Root.Shutdown(req.Code)
	s.UnregisterQuery(queryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{
		"error":    false,
		"code":     0,
		"warnings": query.Query.Warnings(),
		"stats":    query.Query.Stats(),
	})
}

type someRequest struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

type getSomeReply struct {
	Error     bool               `json:"error"`
	Exhausted bool               `json:"exhausted"`
	Stats     aql.ExecutionStats `json:"stats"`
	*rowbatch.Wire
}

func (s *Server) handleGetSome(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req someRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAQLError(errors.AQLCommunication, "malformed getSome body"))
		return
	}
	batch, err := query.Root.GetSome(req.AtLeast, req.AtMost)
	if err != nil {
		writeError(w, err)
		return
	}
	reply := getSomeReply{Stats: query.Query.Stats()}
	if batch == nil {
		reply.Exhausted = true
	} else {
		wire := batch.ToWire()
		reply.Wire = &wire
	}
	writeJSON(w, reply)
}

func (s *Server) handleSkipSome(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodPut) {
		return
	}
	var req someRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAQLError(errors.AQLCommunication, "malformed skipSome body"))
		return
	}
	skipped, err := query.Root.SkipSome(req.AtLeast, req.AtMost)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "skipped": skipped})
}

func (s *Server) handleHasMore(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	hasMore, err := query.Root.HasMore()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "hasMore": hasMore})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	count, err := query.Root.Count()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "count": count})
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request, query *RegisteredQuery) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	remaining, err := query.Root.Remaining()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"error": false, "remaining": remaining})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	if code == errors.QueryNotFound {
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(map[string]any{
		"error":        true,
		"errorNum":     int(code),
		"errorMessage": err.Error(),
	}); encodeErr != nil {
		log.Errorf("failed to write error response: %v", encodeErr)
	}
}
