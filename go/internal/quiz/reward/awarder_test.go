package reward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAwarder_Award(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, awardEndpoint, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_id":"0xabc","message":"ok"}`))
	}))
	defer srv.Close()

	a := NewHTTPAwarder(srv.URL, "secret")
	receipt, err := a.Award(context.Background(), Request{RoomID: "room-1", WinnerWalletID: "0xwinner", Score: 300})
	require.NoError(t, err)
	assert.Equal(t, "0xabc", receipt.TransactionID)
	assert.Equal(t, "room-1", got.RoomID)
	assert.Equal(t, "0xwinner", got.WinnerWalletID)
	assert.Equal(t, 300, got.Score)
}

func TestHTTPAwarder_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unknown wallet", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPAwarder(srv.URL, "").Award(context.Background(), Request{RoomID: "room-1"})
	require.Error(t, err)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadRequest, status.Code)
	assert.Equal(t, "unknown wallet", status.Body)
	assert.False(t, status.Temporary())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPAwarder_RetriesTemporaryFailureOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "chain unavailable", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"transaction_id":"0xdef"}`))
	}))
	defer srv.Close()

	a := NewHTTPAwarder(srv.URL+"/", "")
	a.retryDelay = time.Millisecond
	receipt, err := a.Award(context.Background(), Request{RoomID: "room-1"})
	require.NoError(t, err)
	assert.Equal(t, "0xdef", receipt.TransactionID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPAwarder_GivesUpAfterSecondTemporaryFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "chain unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAwarder(srv.URL, "")
	a.retryDelay = time.Millisecond
	_, err := a.Award(context.Background(), Request{RoomID: "room-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
