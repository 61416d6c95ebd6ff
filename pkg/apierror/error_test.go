package apierror

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestError_ToJSON(t *testing.T) {
	body := ValidationError("bad limit", FieldError{Field: "limit", Message: "must be 1..1000"}).ToJSON()

	var got struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string       `json:"code"`
			Message string       `json:"message"`
			Details []FieldError `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Success || got.Error.Code != "VALIDATION_ERROR" || len(got.Error.Details) != 1 {
		t.Errorf("body = %s", body)
	}
}

func TestNotFound_DefaultMessage(t *testing.T) {
	e := NotFound("")
	if e.StatusCode != http.StatusNotFound || e.Message != "Resource not found" {
		t.Errorf("err = %+v", e)
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("ingest: %w", TooManyRequests("queue full"))
	if got := As(wrapped); got.StatusCode != http.StatusTooManyRequests {
		t.Errorf("As(wrapped) = %+v", got)
	}
	if got := As(fmt.Errorf("boom")); got.StatusCode != http.StatusInternalServerError {
		t.Errorf("As(plain) = %+v", got)
	}
}
