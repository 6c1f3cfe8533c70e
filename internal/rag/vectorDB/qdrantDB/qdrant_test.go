package qdrantDB

import (
	"errors"
	"fmt"
	"testing"

	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMapError(t *testing.T) {
	plain := errors.New("boom")
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"not found", status.Error(codes.NotFound, "no collection"), commonModels.ErrSourceNotFound},
		{"bad dimension", status.Error(codes.InvalidArgument, "wrong vector size"), commonModels.ErrDimensionMismatch},
		{"unavailable", status.Error(codes.Unavailable, "down"), commonModels.ErrRemoteUnavailable},
		{"wrapped", fmt.Errorf("op: %w", status.Error(codes.NotFound, "x")), commonModels.ErrSourceNotFound},
		{"plain", plain, plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("mapError(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
	if mapError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestPointConversion(t *testing.T) {
	points := []commonModels.Point{{
		ID:      "5c56c793-69f3-4fbf-87e6-c4bf54c28c26",
		Vector:  []float32{0.1, 0.2},
		Payload: commonModels.Payload{Data: "chunk text", Source: "notes.txt"},
	}}

	structs := toPointStructs(points)
	if len(structs) != 1 {
		t.Fatalf("expected 1 point, got %d", len(structs))
	}
	if got := structs[0].GetId().GetUuid(); got != points[0].ID {
		t.Errorf("id = %s", got)
	}

	hit := fromScoredPoint(&qdrant.ScoredPoint{Score: 0.9, Payload: structs[0].GetPayload()})
	if hit.Payload != points[0].Payload {
		t.Errorf("payload round trip = %+v", hit.Payload)
	}
	if hit.Score != 0.9 {
		t.Errorf("score = %v", hit.Score)
	}
}
