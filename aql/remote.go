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

package aql

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/brennv/arangodb/clustercomm"
	"github.com/brennv/arangodb/dispatcher"
	"github.com/brennv/arangodb/errors"
	"github.com/brennv/arangodb/rowbatch"
)

// remoteTimeout bounds every synchronous request to a peer.
const remoteTimeout = 3600 * time.Second

// clientTransactionID tags all AQL cluster-internal requests.
const clientTransactionID = "AQL"

// RemoteBlock stands in for an upstream sub-plan living on another server.
// Every iterator call is forwarded as one synchronous request carrying the
// remote query id.
type RemoteBlock struct {
	query      *Query
	comm       clustercomm.Requester
	server     string
	ownName    string
	queryID    string
	deltaStats ExecutionStats

	// only one remote block in a chain initializes and shuts down a shared
	// remote query
	isResponsibleForInitializeCursor bool
}

var _ ExecutionBlock = (*RemoteBlock)(nil)

func NewRemoteBlock(query *Query, comm clustercomm.Requester, server string, ownName string,
	queryID string, isResponsibleForInitializeCursor bool) *RemoteBlock {
	if queryID == "" {
		panic("remote block needs a remote query id")
	}
	return &RemoteBlock{
		query:                            query,
		comm:                             comm,
		server:                           server,
		ownName:                          ownName,
		queryID:                          queryID,
		isResponsibleForInitializeCursor: isResponsibleForInitializeCursor,
	}
}

// sendRequest issues one synchronous request to the peer. A worker on the
// bounded dispatcher yields its slot for the duration of the call so other
// queries can be scheduled while this one waits.
func (r *RemoteBlock) sendRequest(method string, urlPart string, body []byte) *clustercomm.Result {
	coordTransactionID := uuid.New().String()
	headers := map[string]string{}
	if r.ownName != "" {
		headers["Shard-Id"] = r.ownName
	}

	currentThread := dispatcher.CurrentThread()
	if currentThread != nil {
		currentThread.Block()
	}

	result := r.comm.SyncRequest(clientTransactionID, coordTransactionID, r.server, method,
		"/_db/"+url.PathEscape(r.query.Database())+urlPart+r.queryID, body, headers, remoteTimeout)

	if currentThread != nil {
		currentThread.Unblock()
	}

	return result
}

type remoteErrorBody struct {
	Error        bool   `json:"error"`
	ErrorNum     int    `json:"errorNum"`
	ErrorMessage string `json:"errorMessage"`
}

// checkSyncResult turns a failed transport result into an error. During
// shutdown a peer reporting query-not-found is tolerated; the true return
// tells the caller to report success.
func checkSyncResult(result *clustercomm.Result, isShutdown bool) (bool, error) {
	switch result.Status {
	case clustercomm.StatusTimeout:
		return false, errors.NewAQLErrorf(errors.ClusterTimeout,
			"timeout in communication with shard '%s' on cluster node '%s'", result.ShardID, result.ServerID)
	case clustercomm.StatusBackendUnavailable:
		return false, errors.NewAQLErrorf(errors.ConnectionLost,
			"empty result in communication with shard '%s' on cluster node '%s'", result.ShardID, result.ServerID)
	case clustercomm.StatusError:
		var body remoteErrorBody
		errorNum := int(errors.Internal)
		errorMessage := ""
		if err := json.Unmarshal(result.Body, &body); err == nil && body.Error {
			if body.ErrorNum != 0 {
				errorNum = body.ErrorNum
			}
			errorMessage = body.ErrorMessage
		}
		if isShutdown && errorNum == int(errors.QueryNotFound) {
			// this error may happen on shutdown and is thus tolerated
			return true, nil
		}
		if errorNum > 0 && errorMessage != "" {
			return false, errors.NewAQLErrorf(errors.ErrorCode(errorNum),
				"error message received from shard '%s' on cluster node '%s': %s",
				result.ShardID, result.ServerID, errorMessage)
		}
		return false, errors.NewAQLError(errors.AQLCommunication,
			"cluster internal AQL communication error")
	default:
		return false, nil
	}
}

type remoteControlResponse struct {
	Error bool `json:"error"`
	Code  int  `json:"code"`
}

func decodeControlResponse(result *clustercomm.Result) error {
	var resp remoteControlResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		return errors.NewAQLError(errors.AQLCommunication, "malformed control response from peer")
	}
	if resp.Code != 0 {
		return errors.NewAQLErrorf(errors.ErrorCode(resp.Code), "remote operation failed with code %d", resp.Code)
	}
	return nil
}

func (r *RemoteBlock) Initialize() error {
	if !r.isResponsibleForInitializeCursor {
		return nil
	}
	result := r.sendRequest(http.MethodPut, "/_api/aql/initialize/", []byte("{}"))
	if _, err := checkSyncResult(result, false); err != nil {
		return err
	}
	return decodeControlResponse(result)
}

type initializeCursorBody struct {
	Exhausted bool           `json:"exhausted"`
	Error     bool           `json:"error"`
	Pos       *int           `json:"pos,omitempty"`
	Items     *rowbatch.Wire `json:"items,omitempty"`
}

// InitializeCursor forwards the rewind; it may be called multiple times.
func (r *RemoteBlock) InitializeCursor(items *rowbatch.Batch, pos int) error {
	if !r.isResponsibleForInitializeCursor {
		return nil
	}
	var body initializeCursorBody
	if items == nil {
		// first call, no seed row yet
		body.Exhausted = true
	} else {
		wire := items.ToWire()
		body.Pos = &pos
		body.Items = &wire
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	result := r.sendRequest(http.MethodPut, "/_api/aql/initializeCursor/", encoded)
	if _, err := checkSyncResult(result, false); err != nil {
		return err
	}
	return decodeControlResponse(result)
}

type shutdownResponse struct {
	Error    bool      `json:"error"`
	Code     int       `json:"code"`
	Warnings []Warning `json:"warnings"`
}

// Shutdown is forwarded exactly once for the whole remote query. A peer that
// no longer knows the query id counts as success so racing shutdowns do not
// propagate errors.
func (r *RemoteBlock) Shutdown(errorCode int) error {
	if !r.isResponsibleForInitializeCursor {
		return nil
	}
	encoded, err := json.Marshal(map[string]int{"code": errorCode})
	if err != nil {
		return err
	}
	result := r.sendRequest(http.MethodPut, "/_api/aql/shutdown/", encoded)
	tolerated, err := checkSyncResult(result, true)
	if err != nil {
		return err
	}
	if tolerated {
		return nil
	}

	var resp shutdownResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		return errors.NewAQLError(errors.AQLCommunication, "malformed shutdown response from peer")
	}
	for _, warning := range resp.Warnings {
		r.query.RegisterWarning(warning.Code, warning.Message)
	}
	if resp.Code != 0 {
		return errors.NewAQLErrorf(errors.ErrorCode(resp.Code), "remote shutdown failed with code %d", resp.Code)
	}
	return nil
}

type someRequestBody struct {
	AtLeast int `json:"atLeast"`
	AtMost  int `json:"atMost"`
}

type getSomeResponse struct {
	Error     bool           `json:"error"`
	Exhausted bool           `json:"exhausted"`
	Stats     ExecutionStats `json:"stats"`
	rowbatch.Wire
}

func (r *RemoteBlock) GetSome(atLeast int, atMost int) (*rowbatch.Batch, error) {
	encoded, err := json.Marshal(someRequestBody{AtLeast: atLeast, AtMost: atMost})
	if err != nil {
		return nil, err
	}
	result := r.sendRequest(http.MethodPut, "/_api/aql/getSome/", encoded)
	if _, err := checkSyncResult(result, false); err != nil {
		return nil, err
	}

	var resp getSomeResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil {
		return nil, errors.NewAQLError(errors.AQLCommunication, "malformed getSome response from peer")
	}

	// the peer reports absolute stats; fold in the change since our last pull
	r.query.AddStatsDelta(r.deltaStats, resp.Stats)
	r.deltaStats = resp.Stats

	if resp.Exhausted {
		return nil, nil
	}
	return rowbatch.FromWire(resp.Wire)
}

type skipSomeResponse struct {
	Error   bool `json:"error"`
	Skipped int  `json:"skipped"`
}

func (r *RemoteBlock) SkipSome(atLeast int, atMost int) (int, error) {
	encoded, err := json.Marshal(someRequestBody{AtLeast: atLeast, AtMost: atMost})
	if err != nil {
		return 0, err
	}
	result := r.sendRequest(http.MethodPut, "/_api/aql/skipSome/", encoded)
	if _, err := checkSyncResult(result, false); err != nil {
		return 0, err
	}
	var resp skipSomeResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil || resp.Error {
		return 0, errors.NewAQLError(errors.AQLCommunication, "cluster internal AQL communication error")
	}
	return resp.Skipped, nil
}

type hasMoreResponse struct {
	Error   bool `json:"error"`
	HasMore bool `json:"hasMore"`
}

func (r *RemoteBlock) HasMore() (bool, error) {
	result := r.sendRequest(http.MethodGet, "/_api/aql/hasMore/", nil)
	if _, err := checkSyncResult(result, false); err != nil {
		return false, err
	}
	var resp hasMoreResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil || resp.Error {
		return false, errors.NewAQLError(errors.AQLCommunication, "cluster internal AQL communication error")
	}
	return resp.HasMore, nil
}

type countResponse struct {
	Error bool  `json:"error"`
	Count int64 `json:"count"`
}

func (r *RemoteBlock) Count() (int64, error) {
	result := r.sendRequest(http.MethodGet, "/_api/aql/count/", nil)
	if _, err := checkSyncResult(result, false); err != nil {
		return 0, err
	}
	var resp countResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil || resp.Error {
		return 0, errors.NewAQLError(errors.AQLCommunication, "cluster internal AQL communication error")
	}
	return resp.Count, nil
}

type remainingResponse struct {
	Error     bool  `json:"error"`
	Remaining int64 `json:"remaining"`
}

func (r *RemoteBlock) Remaining() (int64, error) {
	result := r.sendRequest(http.MethodGet, "/_api/aql/remaining/", nil)
	if _, err := checkSyncResult(result, false); err != nil {
		return 0, err
	}
	var resp remainingResponse
	if err := json.Unmarshal(result.Body, &resp); err != nil || resp.Error {
		return 0, errors.NewAQLError(errors.AQLCommunication, "cluster internal AQL communication error")
	}
	return resp.Remaining, nil
}
