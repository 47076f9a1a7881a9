package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostal/internal/domain/fiscal"
	"hostal/internal/domain/fiscal/issuing"
)

func testSubmission() issuing.Submission {
	return issuing.Submission{
		Series:           fiscal.SeriesInvoice,
		Prefix:           "FVK",
		SequentialNumber: 57,
	}
}

func TestSubmit_Acknowledged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"external_reference":"cufe-abc"}`))
	}))
	defer srv.Close()

	client := NewClient(DefaultConfig(srv.URL, "secret"))
	receipt, err := client.Submit(context.Background(), testSubmission())
	require.NoError(t, err)
	assert.Equal(t, "cufe-abc", receipt.ExternalReference)
}

func TestSubmit_AcceptedWithoutReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(DefaultConfig(srv.URL, ""))
	_, err := client.Submit(context.Background(), testSubmission())
	require.Error(t, err)

	var rejection *issuing.RejectionError
	assert.False(t, errors.As(err, &rejection))
}

func TestSubmit_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid tax id"}`))
	}))
	defer srv.Close()

	client := NewClient(DefaultConfig(srv.URL, ""))
	_, err := client.Submit(context.Background(), testSubmission())
	require.Error(t, err)

	var rejection *issuing.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "invalid tax id", rejection.Reason)
}

func TestSubmit_RejectionWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(DefaultConfig(srv.URL, ""))
	_, err := client.Submit(context.Background(), testSubmission())

	var rejection *issuing.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Contains(t, rejection.Reason, "400")
}

func TestSubmit_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(DefaultConfig(srv.URL, ""))
	_, err := client.Submit(context.Background(), testSubmission())
	require.Error(t, err)

	// Transport failures are plain errors, never rejections.
	var rejection *issuing.RejectionError
	assert.False(t, errors.As(err, &rejection))
}

func TestSubmit_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(DefaultConfig(srv.URL, ""))
	_, err := client.Submit(context.Background(), testSubmission())
	require.Error(t, err)
}
