package vector

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	hxerrors "github.com/reelpipe/hindex/internal/errors"
)

// defaultGRPCPort is Qdrant's gRPC port when the URL carries none.
const defaultGRPCPort = 6334

// Config selects the Qdrant instance and collection.
type Config struct {
	// URL is the HTTP endpoint, e.g. http://localhost:6333. The gRPC port
	// is derived as HTTP port + 1, Qdrant's standard layout.
	URL string

	// Collection is the collection all operations target.
	Collection string

	// APIKey is sent with every request when non-empty.
	APIKey string
}

// Qdrant implements Store backed by a Qdrant collection.
type Qdrant struct {
	client     *qdrant.Client
	collection string
}

var _ Store = (*Qdrant)(nil)

// NewQdrant connects to Qdrant. The gRPC client dials lazily, so this
// succeeds even when the server is down; the first operation reports
// unreachability instead.
func NewQdrant(cfg Config) (*Qdrant, error) {
	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("cannot create Qdrant client for %s", cfg.URL), err)
	}

	return &Qdrant{client: client, collection: cfg.Collection}, nil
}

// parseEndpoint extracts host and gRPC port from an HTTP endpoint URL.
func parseEndpoint(urlStr string) (host string, port int, useTLS bool, err error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, false, hxerrors.ConfigError(
			fmt.Sprintf("invalid Qdrant URL %q", urlStr), err)
	}

	host = parsed.Hostname()
	if host == "" {
		host = "localhost"
	}

	port = defaultGRPCPort
	if parsed.Port() != "" {
		httpPort, convErr := strconv.Atoi(parsed.Port())
		if convErr != nil {
			return "", 0, false, hxerrors.ConfigError(
				fmt.Sprintf("invalid port in Qdrant URL %q", urlStr), convErr)
		}
		port = httpPort + 1
	}

	return host, port, parsed.Scheme == "https", nil
}

// Exists reports whether the collection is present, without creating it.
func (s *Qdrant) Exists(ctx context.Context) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, s.unavailable("check collection", err)
	}
	return exists, nil
}

// EnsureCollection creates the collection with cosine distance when it does
// not exist. An existing collection with a different vector width is fatal:
// writing would corrupt the index and querying would return garbage.
func (s *Qdrant) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return s.unavailable("check collection", err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return s.unavailable("create collection", err)
		}
		slog.Info("collection_created",
			slog.String("collection", s.collection),
			slog.Int("dimensions", dims))
		return nil
	}

	existing, err := s.collectionVectorSize(ctx)
	if err != nil {
		return err
	}
	if existing != dims {
		return hxerrors.DimensionError(
			fmt.Sprintf("collection %q holds %d-dimensional vectors, the embedding model produces %d",
				s.collection, existing, dims)).
			WithSuggestion("drop the collection, change qdrant.collection, or switch embedding models")
	}
	return nil
}

// Upsert writes points with wait enabled so a returned nil means the points
// are durably applied, not just queued.
func (s *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qp := &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
		}
		if len(p.Payload) > 0 {
			qp.Payload = qdrant.NewValueMap(p.Payload)
		}
		qpoints = append(qpoints, qp)
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         qpoints,
		Wait:           &wait,
	})
	if err != nil {
		return hxerrors.StoreError(
			fmt.Sprintf("upsert of %d points into %q failed", len(points), s.collection), err)
	}
	return nil
}

// Delete removes points by id.
func (s *Qdrant) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	qids := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		qids = append(qids, qdrant.NewID(id))
	}

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(qids...),
		Wait:           &wait,
	})
	if err != nil {
		return hxerrors.StoreError(
			fmt.Sprintf("delete of %d points from %q failed", len(ids), s.collection), err)
	}
	return nil
}

// Query runs a cosine similarity search and returns payloads with scores.
func (s *Qdrant) Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]ScoredPoint, error) {
	if topK <= 0 {
		return nil, hxerrors.New(hxerrors.ErrCodeInvalidQuery,
			fmt.Sprintf("top_k must be positive, got %d", topK), nil)
	}

	limit := uint64(topK)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildFilter(filter); qf != nil {
		req.Filter = qf
	}

	scored, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, hxerrors.New(hxerrors.ErrCodeStoreQuery,
			fmt.Sprintf("query against %q failed", s.collection), err)
	}

	results := make([]ScoredPoint, 0, len(scored))
	for _, sp := range scored {
		id := ""
		if sp.Id != nil {
			id = sp.Id.GetUuid()
		}
		payload := map[string]any{}
		if sp.Payload != nil {
			payload = fromQdrantPayload(sp.Payload)
		}
		results = append(results, ScoredPoint{ID: id, Score: sp.Score, Payload: payload})
	}
	return results, nil
}

// buildFilter translates equality filters into Qdrant must conditions.
// Keys are sorted so the request is deterministic.
func buildFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must = append(must, qdrant.NewMatch(k, filter[k]))
	}
	return &qdrant.Filter{Must: must}
}

// Info reports collection vector width, point count, and status.
func (s *Qdrant) Info(ctx context.Context) (*CollectionInfo, error) {
	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return nil, s.unavailable("get collection info", err)
	}

	out := &CollectionInfo{Status: "unknown"}
	if config := info.Config; config != nil && config.Params != nil {
		if vc := config.Params.GetVectorsConfig(); vc != nil {
			if params := vc.GetParams(); params != nil {
				out.VectorSize = int(params.Size)
			}
		}
	}
	if info.PointsCount != nil {
		out.PointsCount = *info.PointsCount
	}
	if info.Status != 0 {
		out.Status = info.Status.String()
	}
	return out, nil
}

// Close releases the gRPC connection.
func (s *Qdrant) Close() error {
	return s.client.Close()
}

func (s *Qdrant) collectionVectorSize(ctx context.Context) (int, error) {
	info, err := s.Info(ctx)
	if err != nil {
		return 0, err
	}
	if info.VectorSize == 0 {
		return 0, hxerrors.New(hxerrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("cannot determine vector size of collection %q", s.collection), nil)
	}
	return info.VectorSize, nil
}

func (s *Qdrant) unavailable(op string, err error) error {
	return hxerrors.New(hxerrors.ErrCodeStoreUnavailable,
		fmt.Sprintf("%s %q failed", op, s.collection), err).
		WithSuggestion("is Qdrant running and reachable at the configured qdrant.url?")
}

// fromQdrantPayload converts a stored payload back to plain Go values.
func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = fromQdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(val.StructValue.Fields)
	default:
		return nil
	}
}
