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
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brennv/arangodb/clustercomm"
	"github.com/brennv/arangodb/errors"
)

type recordedRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// fakeRequester scripts transport results and records every request.
type fakeRequester struct {
	requests []recordedRequest
	results  []*clustercomm.Result
}

func (f *fakeRequester) SyncRequest(_ string, _ string, serverID string, method string, path string,
	body []byte, headers map[string]string, _ time.Duration) *clustercomm.Result {
	f.requests = append(f.requests, recordedRequest{
		Method:  method,
		Path:    path,
		Body:    string(body),
		Headers: headers,
	})
	if len(f.results) == 0 {
		return &clustercomm.Result{Status: clustercomm.StatusOK, ServerID: serverID, Body: []byte(`{"error":false,"code":0}`)}
	}
	res := f.results[0]
	f.results = f.results[1:]
	res.ServerID = serverID
	return res
}

func (f *fakeRequester) pushOK(body string) {
	f.results = append(f.results, &clustercomm.Result{
		Status:     clustercomm.StatusOK,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
	})
}

func (f *fakeRequester) pushStatus(status clustercomm.Status) {
	f.results = append(f.results, &clustercomm.Result{Status: status})
}

func (f *fakeRequester) pushError(statusCode int, body string) {
	f.results = append(f.results, &clustercomm.Result{
		Status:     clustercomm.StatusError,
		StatusCode: statusCode,
		Body:       []byte(body),
	})
}

func newTestRemote(comm clustercomm.Requester, responsible bool) (*RemoteBlock, *Query) {
	query := NewQuery("Q1", "testdb")
	return NewRemoteBlock(query, comm, "dbserver1", "", "Q1", responsible), query
}

func TestRemoteGetSome(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)

	wire := intBatch(1, 2, 3).ToWire()
	encoded, err := json.Marshal(wire)
	require.NoError(t, err)
	f.pushOK(fmt.Sprintf(`{"error":false,"exhausted":false,"stats":{},"nrItems":%d,"nrRegs":%d,"data":%s}`,
		wire.NrItems, wire.NrRegs, extractField(t, encoded, "data")))

	batch, err := r.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, intColumn(t, batch, 0))

	require.Len(t, f.requests, 1)
	require.Equal(t, http.MethodPut, f.requests[0].Method)
	require.Equal(t, "/_db/testdb/_api/aql/getSome/Q1", f.requests[0].Path)
	require.JSONEq(t, `{"atLeast":1,"atMost":10}`, f.requests[0].Body)
}

func extractField(t *testing.T, encoded []byte, field string) string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &m))
	return string(m[field])
}

func TestRemoteGetSomeExhausted(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)
	f.pushOK(`{"error":false,"exhausted":true,"stats":{}}`)

	batch, err := r.GetSome(1, 10)
	require.NoError(t, err)
	require.Nil(t, batch)
}

func TestRemoteGetSomeStatsDelta(t *testing.T) {
	f := &fakeRequester{}
	r, query := newTestRemote(f, true)

	f.pushOK(`{"error":false,"exhausted":true,"stats":{"scannedFull":5,"filtered":1}}`)
	f.pushOK(`{"error":false,"exhausted":true,"stats":{"scannedFull":8,"filtered":1}}`)

	_, err := r.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(5), query.Stats().ScannedFull)

	_, err = r.GetSome(1, 10)
	require.NoError(t, err)
	// only the delta since the previous pull is added
	require.Equal(t, int64(8), query.Stats().ScannedFull)
	require.Equal(t, int64(1), query.Stats().Filtered)
}

func TestRemoteSkipSome(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)
	f.pushOK(`{"error":false,"skipped":7}`)

	skipped, err := r.SkipSome(5, 10)
	require.NoError(t, err)
	require.Equal(t, 7, skipped)
	require.Equal(t, "/_db/testdb/_api/aql/skipSome/Q1", f.requests[0].Path)
	require.JSONEq(t, `{"atLeast":5,"atMost":10}`, f.requests[0].Body)
}

func TestRemoteHasMoreCountRemaining(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)

	f.pushOK(`{"error":false,"hasMore":true}`)
	hasMore, err := r.HasMore()
	require.NoError(t, err)
	require.True(t, hasMore)
	require.Equal(t, http.MethodGet, f.requests[0].Method)
	require.Equal(t, "/_db/testdb/_api/aql/hasMore/Q1", f.requests[0].Path)

	f.pushOK(`{"error":false,"count":12}`)
	count, err := r.Count()
	require.NoError(t, err)
	require.Equal(t, int64(12), count)
	require.Equal(t, "/_db/testdb/_api/aql/count/Q1", f.requests[1].Path)

	f.pushOK(`{"error":false,"remaining":4}`)
	remaining, err := r.Remaining()
	require.NoError(t, err)
	require.Equal(t, int64(4), remaining)
	require.Equal(t, "/_db/testdb/_api/aql/remaining/Q1", f.requests[2].Path)
}

func TestRemoteInitialize(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)
	f.pushOK(`{"error":false,"code":0}`)

	require.NoError(t, r.Initialize())
	require.Equal(t, http.MethodPut, f.requests[0].Method)
	require.Equal(t, "/_db/testdb/_api/aql/initialize/Q1", f.requests[0].Path)
	require.Equal(t, "{}", f.requests[0].Body)
}

func TestRemoteInitializeCursor(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)

	f.pushOK(`{"error":false,"code":0}`)
	require.NoError(t, r.InitializeCursor(nil, 0))
	require.Equal(t, "/_db/testdb/_api/aql/initializeCursor/Q1", f.requests[0].Path)
	require.JSONEq(t, `{"exhausted":true,"error":false}`, f.requests[0].Body)

	f.pushOK(`{"error":false,"code":0}`)
	seed := intBatch(9)
	require.NoError(t, r.InitializeCursor(seed, 0))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(f.requests[1].Body), &body))
	require.Equal(t, "false", string(body["exhausted"]))
	require.Contains(t, string(body["items"]), `"nrItems":1`)
}

func TestRemoteNotResponsibleShortCircuits(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, false)

	require.NoError(t, r.Initialize())
	require.NoError(t, r.InitializeCursor(nil, 0))
	require.NoError(t, r.Shutdown(0))
	require.Empty(t, f.requests)
}

func TestRemoteShutdown(t *testing.T) {
	f := &fakeRequester{}
	r, query := newTestRemote(f, true)
	f.pushOK(`{"error":false,"code":0,"warnings":[{"code":17,"message":"hot shard"}]}`)

	require.NoError(t, r.Shutdown(0))
	require.Equal(t, "/_db/testdb/_api/aql/shutdown/Q1", f.requests[0].Path)
	require.JSONEq(t, `{"code":0}`, f.requests[0].Body)

	warnings := query.Warnings()
	require.Len(t, warnings, 1)
	require.Equal(t, 17, warnings[0].Code)
	require.Equal(t, "hot shard", warnings[0].Message)
}

func TestRemoteShutdownToleratesQueryNotFound(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)
	f.pushError(http.StatusNotFound, fmt.Sprintf(`{"error":true,"errorNum":%d,"errorMessage":"query not found"}`,
		int(errors.QueryNotFound)))

	require.NoError(t, r.Shutdown(0))
}

func TestRemoteErrorMapping(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)

	f.pushStatus(clustercomm.StatusTimeout)
	_, err := r.GetSome(1, 10)
	require.True(t, errors.IsAQLErrorWithCode(err, errors.ClusterTimeout))

	f.pushStatus(clustercomm.StatusBackendUnavailable)
	_, err = r.GetSome(1, 10)
	require.True(t, errors.IsAQLErrorWithCode(err, errors.ConnectionLost))

	f.pushError(http.StatusInternalServerError, `{"error":true,"errorNum":1234,"errorMessage":"boom"}`)
	_, err = r.GetSome(1, 10)
	require.True(t, errors.IsAQLErrorWithCode(err, errors.ErrorCode(1234)))
	require.Contains(t, err.Error(), "boom")

	// an error response without usable fields maps to the generic
	// communication failure
	f.pushError(http.StatusInternalServerError, `not json`)
	_, err = r.GetSome(1, 10)
	require.True(t, errors.IsAQLErrorWithCode(err, errors.AQLCommunication))
}

func TestRemoteGetSomeQueryNotFoundIsNotToleratedOutsideShutdown(t *testing.T) {
	f := &fakeRequester{}
	r, _ := newTestRemote(f, true)
	f.pushError(http.StatusNotFound, fmt.Sprintf(`{"error":true,"errorNum":%d,"errorMessage":"query not found"}`,
		int(errors.QueryNotFound)))

	_, err := r.GetSome(1, 10)
	require.Error(t, err)
	require.True(t, errors.IsAQLErrorWithCode(err, errors.QueryNotFound))
}

func TestRemoteShardIDHeader(t *testing.T) {
	f := &fakeRequester{}
	query := NewQuery("Q1", "testdb")
	r := NewRemoteBlock(query, f, "coordinator1", "s1", "Q1", true)
	f.pushOK(`{"error":false,"code":0}`)

	require.NoError(t, r.Initialize())
	require.Equal(t, "s1", f.requests[0].Headers["Shard-Id"])
}

func TestRemoteDatabaseNameIsEscaped(t *testing.T) {
	f := &fakeRequester{}
	query := NewQuery("Q1", "my db")
	r := NewRemoteBlock(query, f, "dbserver1", "", "Q1", true)
	f.pushOK(`{"error":false,"code":0}`)

	require.NoError(t, r.Initialize())
	require.Equal(t, "/_db/my%20db/_api/aql/initialize/Q1", f.requests[0].Path)
}
