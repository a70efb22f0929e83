package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/desertthunder/setlistsync/internal/models"
	"github.com/desertthunder/setlistsync/internal/shared"
)

type orchestrateRequest struct {
	EntityType string `json:"type" validate:"required,entitytype"`
	EntityID   string `json:"id" validate:"required"`
	Operation  string `json:"operation" validate:"operation"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid enqueue request", func(t *testing.T) {
		req := models.EnqueueRequest{EntityType: models.EntityArtist, EntityID: "K8vZ917G7x0", Priority: 3}
		if err := ValidateStruct(&req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects out of range priority", func(t *testing.T) {
		req := models.EnqueueRequest{EntityType: models.EntityArtist, EntityID: "x", Priority: 11}
		err := ValidateStruct(&req)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "priority must be less than or equal to 10") {
			t.Errorf("unexpected message: %v", err)
		}
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Error("expected ErrInvalidInput")
		}
		if !shared.IsPermanent(err) {
			t.Error("validation errors should be permanent")
		}
	})

	t.Run("custom rules", func(t *testing.T) {
		tests := []struct {
			name    string
			req     orchestrateRequest
			wantErr string
		}{
			{"valid", orchestrateRequest{"show", "1", "cascade_sync"}, ""},
			{"empty operation allowed", orchestrateRequest{"song", "1", ""}, ""},
			{"unknown type", orchestrateRequest{"album", "1", "refresh"}, "type must be one of"},
			{"unknown operation", orchestrateRequest{"artist", "1", "delete"}, "operation must be one of"},
			{"missing id", orchestrateRequest{"artist", "", "refresh"}, "id is required"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := ValidateStruct(&tt.req)
				if tt.wantErr == "" {
					if err != nil {
						t.Fatalf("unexpected error: %v", err)
					}
					return
				}
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
			})
		}
	})
}
