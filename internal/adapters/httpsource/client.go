package httpsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/valyala/fasthttp"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUpstreamStatus is returned for any non-200 upstream response.
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// Source implements ports.ParkSource against a static park data host:
//
//	GET {base}/parks.json
//	GET {base}/parks.topojson
//	GET {base}/trails.topojson
//	GET {base}/lookup/{kind}.json
//	GET {base}/geo/{park_id}/{category}.geojson
type Source struct {
	base    string
	client  *fasthttp.Client
	timeout time.Duration
}

// New creates a Source rooted at baseURL.
func New(baseURL string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &fasthttp.Client{
			Name:                "parkpass",
			MaxConnsPerHost:     64,
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

// FetchAllParks downloads the park list.
func (s *Source) FetchAllParks(ctx context.Context) ([]domain.Park, error) {
	body, err := s.get(ctx, "/parks.json")
	if err != nil {
		return nil, err
	}
	var parks []domain.Park
	if err := json.Unmarshal(body, &parks); err != nil {
		return nil, fmt.Errorf("decode parks: %w", err)
	}
	return parks, nil
}

// FetchAllParksTopology downloads the parks TopoJSON.
func (s *Source) FetchAllParksTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return s.getBlob(ctx, "/parks.topojson")
}

// FetchAllTrailsTopology downloads the trails TopoJSON.
func (s *Source) FetchAllTrailsTopology(ctx context.Context) (domain.TopologyBlob, error) {
	return s.getBlob(ctx, "/trails.topojson")
}

// FetchLookup downloads one tag → park ids table.
func (s *Source) FetchLookup(ctx context.Context, kind domain.LookupKind) (domain.LookupTable, error) {
	body, err := s.get(ctx, "/lookup/"+string(kind)+".json")
	if err != nil {
		return nil, err
	}
	var table domain.LookupTable
	if err := json.Unmarshal(body, &table); err != nil {
		return nil, fmt.Errorf("decode %s lookup: %w", kind, err)
	}
	return table, nil
}

// FetchFeatureGeometry downloads one category of a park's detail geometry.
func (s *Source) FetchFeatureGeometry(ctx context.Context, parkID domain.ParkID, category domain.Category) (*domain.FeatureGeometry, error) {
	body, err := s.get(ctx, fmt.Sprintf("/geo/%s/%s.geojson", parkID, category))
	if err != nil {
		return nil, err
	}
	return ParseFeatureGeometry(parkID, category, body)
}

// ParseFeatureGeometry accepts any JSON payload and keeps it verbatim.
// Feature count and bounds are read from a GeoJSON FeatureCollection,
// Feature or bare geometry when the payload is one of those, and are left
// zero and nil otherwise.
func ParseFeatureGeometry(parkID domain.ParkID, category domain.Category, body []byte) (*domain.FeatureGeometry, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode %s geometry for park %s: invalid json", category, parkID)
	}

	fg := &domain.FeatureGeometry{
		ParkID:   parkID,
		Category: category,
		Payload:  append([]byte(nil), body...),
	}

	var (
		bound orb.Bound
		found bool
	)
	extend := func(g orb.Geometry) {
		if g == nil {
			return
		}
		b := g.Bound()
		if !found {
			bound, found = b, true
			return
		}
		bound = bound.Union(b)
	}

	if fc, err := geojson.UnmarshalFeatureCollection(body); err == nil {
		fg.FeatureCount = len(fc.Features)
		for _, f := range fc.Features {
			if f != nil {
				extend(f.Geometry)
			}
		}
	} else if f, err := geojson.UnmarshalFeature(body); err == nil {
		fg.FeatureCount = 1
		extend(f.Geometry)
	} else if g, err := geojson.UnmarshalGeometry(body); err == nil {
		fg.FeatureCount = 1
		extend(g.Geometry())
	}

	if found {
		fg.Bounds = &domain.Bounds{
			MinLat: bound.Min.Lat(),
			MinLon: bound.Min.Lon(),
			MaxLat: bound.Max.Lat(),
			MaxLon: bound.Max.Lon(),
		}
	}
	return fg, nil
}

func (s *Source) getBlob(ctx context.Context, path string) (domain.TopologyBlob, error) {
	body, err := s.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("decode %s: invalid json", path)
	}
	return domain.TopologyBlob(body), nil
}

// get performs one GET. fasthttp has no context support, so the context
// deadline is folded into the request deadline and cancellation is
// checked before the call.
func (s *Source) get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	url := s.base + path
	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("GET %s: %w: %d", url, ErrUpstreamStatus, resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}
