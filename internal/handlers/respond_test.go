package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/attendance/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrEventNotFound, http.StatusNotFound},
		{models.ErrRegistrantNotFound, http.StatusNotFound},
		{models.ErrDuplicateRegistrant, http.StatusConflict},
		{models.ErrEventModified, http.StatusConflict},
		{models.ErrInvalidWindow, http.StatusBadRequest},
		{&models.MissingFieldError{Field: "tshirt"}, http.StatusBadRequest},
		{models.ErrProxyCheckIn, http.StatusForbidden},
		{models.ErrOutsideWindow, http.StatusForbidden},
		{models.ErrCredentialMismatch, http.StatusUnauthorized},
		{fmt.Errorf("list: %w", models.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{errors.New("surprise"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, fmt.Errorf("mongo: connection refused at 10.0.0.3: %w", models.ErrStorageUnavailable))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.ApiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "service temporarily unavailable" {
		t.Errorf("error = %q", resp.Error)
	}
	if len(c.Errors) != 1 {
		t.Errorf("expected the cause attached for logging, got %d errors", len(c.Errors))
	}
}

func TestRespondErrorNamesTheField(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondError(c, &models.UnknownFieldError{Field: "shoe_size"})

	var resp models.ApiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if w.Code != http.StatusBadRequest || resp.Field != "shoe_size" {
		t.Errorf("got %d field=%q", w.Code, resp.Field)
	}
}
