package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

func TestHttpStatusForDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantOK     bool
	}{
		{"validation", core.ErrValidation("BAD_INPUT", "bad"), http.StatusUnprocessableEntity, true},
		{"graph", core.ErrGraph(core.CodeGraphCycle, "cycle"), http.StatusUnprocessableEntity, true},
		{"reference", core.ErrUnresolvedReference("{{X}}"), http.StatusUnprocessableEntity, true},
		{"not found", core.ErrNotFound("workflow", "x"), http.StatusNotFound, true},
		{"credential", core.ErrCredential("crm", "missing"), http.StatusFailedDependency, true},
		{"timeout", core.ErrTimeout("timed out"), http.StatusGatewayTimeout, true},
		{"state (default)", core.ErrState("BAD_STATE", "error"), http.StatusInternalServerError, true},
		{"non-domain error", errors.New("plain"), 0, false},
		{"nil error", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ok := httpStatusForDomainError(tt.err)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}
