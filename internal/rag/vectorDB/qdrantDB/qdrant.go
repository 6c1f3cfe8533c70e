package qdrantDB

import (
	"context"
	"fmt"
	"sync"

	"github.com/akolanti/mirage/internal/config"
	"github.com/akolanti/mirage/internal/domain/commonModels"
	"github.com/akolanti/mirage/pkg/logger_i"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var logger *logger_i.Logger
var qdrantInstance *qdrant.Client
var once sync.Once

const (
	payloadData   = "data"
	payloadSource = "source"
)

type ClientHolder struct {
	QObj *qdrant.Client
}

// GetQdrantClient returns the shared client, or nil when qdrant cannot be
// reached. The client is closed when ctx is done.
func GetQdrantClient(ctx context.Context) *ClientHolder {
	once.Do(func() {
		logger = logger_i.NewLogger("Qdrant")
		res := newClient(ctx)
		if res != nil {
			qdrantInstance = res
			go closeQdrant(ctx, qdrantInstance)
		}
	})

	if qdrantInstance == nil {
		return nil
	}
	return &ClientHolder{QObj: qdrantInstance}
}

func newClient(ctx context.Context) *qdrant.Client {
	host, port := config.QdrantAddr()
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:     host,
		Port:     port,
		UseTLS:   config.QdrantUseTLS,
		PoolSize: uint(config.QdrantPoolSize),
	})
	if err != nil {
		logger.Error("could not instantiate", "error", err)
		return nil
	}
	if _, err := client.HealthCheck(ctx); err != nil {
		logger.Error("qdrant health check failed", "host", host, "port", port, "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("Connected to Qdrant", "host", host, "port", port)
	return client
}

func closeQdrant(ctx context.Context, qi *qdrant.Client) {
	<-ctx.Done()
	logger.Info("Shutting down Qdrant")
	if err := qi.Close(); err != nil {
		logger.Error("could not close Qdrant", "error", err)
	}
	logger.Info("Closed Qdrant")
}

func (db *ClientHolder) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	if name == "" {
		return commonModels.ErrEmptyCollectionName
	}
	err := db.QObj.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	return mapError(err)
}

func (db *ClientHolder) CollectionExists(ctx context.Context, name string) (bool, error) {
	ok, err := db.QObj.CollectionExists(ctx, name)
	return ok, mapError(err)
}

func (db *ClientHolder) ListCollections(ctx context.Context) ([]string, error) {
	names, err := db.QObj.ListCollections(ctx)
	return names, mapError(err)
}

func (db *ClientHolder) DeleteCollection(ctx context.Context, name string) error {
	exists, err := db.QObj.CollectionExists(ctx, name)
	if err != nil {
		return mapError(err)
	}
	if !exists {
		return nil
	}
	return mapError(db.QObj.DeleteCollection(ctx, name))
}

// VectorSize reports the dimension a collection was created with.
func (db *ClientHolder) VectorSize(ctx context.Context, name string) (uint64, error) {
	info, err := db.QObj.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, mapError(err)
	}
	return info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(), nil
}

func (db *ClientHolder) Upsert(ctx context.Context, name string, points []commonModels.Point) error {
	if len(points) == 0 {
		return nil
	}
	_, err := db.QObj.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Points:         toPointStructs(points),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert into %s failed: %w", name, mapError(err))
	}
	return nil
}

func (db *ClientHolder) Search(ctx context.Context, name string, vector []float32, limit int) ([]commonModels.SearchHit, error) {
	loggr := logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "collection", name)
	result, err := db.QObj.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		loggr.Error("Error querying Qdrant", "error", err)
		return nil, mapError(err)
	}

	hits := make([]commonModels.SearchHit, 0, len(result))
	for _, hit := range result {
		hits = append(hits, fromScoredPoint(hit))
	}
	loggr.Debug("Found matches", "count", len(hits))
	return hits, nil
}

func toPointStructs(points []commonModels.Point) []*qdrant.PointStruct {
	out := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		out[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadData:   p.Payload.Data,
				payloadSource: p.Payload.Source,
			}),
		}
	}
	return out
}

func fromScoredPoint(hit *qdrant.ScoredPoint) commonModels.SearchHit {
	payload := hit.GetPayload()
	return commonModels.SearchHit{
		Score: hit.GetScore(),
		Payload: commonModels.Payload{
			Data:   payload[payloadData].GetStringValue(),
			Source: payload[payloadSource].GetStringValue(),
		},
	}
}

// mapError turns qdrant's grpc statuses into the domain errors callers
// branch on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	// FromError unwraps qdrant's QdrantError
	s, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch s.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", s.Message(), commonModels.ErrSourceNotFound)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", s.Message(), commonModels.ErrDimensionMismatch)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", s.Message(), commonModels.ErrRemoteUnavailable)
	}
	return err
}
