package http

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/parkpass/internal/core/domain"
	"github.com/samirrijal/parkpass/internal/core/usecases"
)

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Locator   string          `json:"locator"`
	Snapshot  domain.Snapshot `json:"snapshot"`
}

type locationBody struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// coordinate returns nil when neither field is set.
func (b locationBody) coordinate() (*domain.Coordinate, error) {
	if b.Lat == nil && b.Lng == nil {
		return nil, nil
	}
	if b.Lat == nil || b.Lng == nil {
		return nil, fmt.Errorf("%w: lat and lng must be given together", domain.ErrInvalidCoordinate)
	}
	c := domain.NewCoordinate(*b.Lat, *b.Lng)
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCoordinate, c)
	}
	return &c, nil
}

// lookupSession resolves :id and refreshes the session's idle timer.
func lookupSession(c *fiber.Ctx, deps *Dependencies) (*usecases.Session, error) {
	return deps.Sessions.Get(c.Params("id"))
}

// CreateSessionHandler starts a session. The body may carry the browser's
// geolocation; otherwise the client IP is used when GeoIP is configured.
func CreateSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body locationBody
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}
		loc, err := body.coordinate()
		if err != nil {
			return errFromDomain(c, err)
		}

		sess, err := deps.Sessions.Create(c.UserContext(), usecases.CreateSessionRequest{
			Location: loc,
			ClientIP: c.IP(),
		})
		if err != nil {
			return errFromDomain(c, err)
		}

		c.Location("/v1/sessions/" + sess.ID)
		return c.Status(fiber.StatusCreated).JSON(SessionResponse{
			ID:        sess.ID,
			CreatedAt: sess.CreatedAt.Format(time.RFC3339),
			Locator:   sess.Locator,
			Snapshot:  sess.Engine.Snapshot(),
		})
	}
}

// GetSessionHandler returns the full snapshot. The ETag is the snapshot
// version, so pollers get 304 until something changes.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		snap := sess.Engine.Snapshot()
		c.Set(fiber.HeaderETag, versionETag(snap.Version))
		return c.JSON(snap)
	}
}

// DeleteSessionHandler ends a session.
func DeleteSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Sessions.Delete(c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// VisibleParksHandler returns the filtered parks, paginated.
func VisibleParksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		parks := sess.Engine.VisibleParks()
		offset, limit := pageParams(c, 100, 500)

		pg := Pagination{Offset: offset, Limit: limit, Total: len(parks)}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page(parks, offset, limit), Pagination: pg})
	}
}

// VisibleParkIDsHandler returns the ids of the visible parks.
func VisibleParkIDsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		ids := sess.Engine.VisibleParkIDs()
		return c.JSON(fiber.Map{"ids": ids, "count": len(ids)})
	}
}

// NearbyParksHandler returns parks closest to the user, in miles.
func NearbyParksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		radius := c.QueryFloat("radius", 25)
		limit := c.QueryInt("limit", 20)
		if radius <= 0 || radius > 500 {
			return errBadRequest(c, "radius must be between 0 and 500 miles")
		}
		if limit <= 0 || limit > 200 {
			limit = 20
		}

		parks, err := sess.Engine.NearbyParks(radius, limit)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(parks)
	}
}

// ParksWithinHandler returns parks whose center lies in a bounding box.
func ParksWithinHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var b domain.Bounds
		for _, q := range []struct {
			name string
			dst  *float64
		}{
			{"min_lat", &b.MinLat}, {"min_lon", &b.MinLon},
			{"max_lat", &b.MaxLat}, {"max_lon", &b.MaxLon},
		} {
			v, err := strconv.ParseFloat(c.Query(q.name), 64)
			if err != nil {
				return errBadRequest(c, q.name+" is required and must be a number")
			}
			*q.dst = v
		}
		if !b.Valid() {
			return errBadRequest(c, "bounding box is inverted")
		}
		return c.JSON(sess.Engine.ParksWithin(b))
	}
}

// FiltersHandler lists filter tags and whether both lookups have loaded.
func FiltersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		snap := sess.Engine.Snapshot()
		return c.JSON(fiber.Map{
			"tags":          sess.Engine.FilterTags(),
			"filters_ready": snap.FiltersReady,
			"active":        snap.Filter,
		})
	}
}

type filterBody struct {
	Tag string `json:"tag"`
}

// ApplyFilterHandler replaces the active filter.
func ApplyFilterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var body filterBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.Tag == "" {
			return errBadRequest(c, "tag is required")
		}
		visible := sess.Engine.ApplyFilter(body.Tag)
		return c.JSON(fiber.Map{"filter": body.Tag, "visible": visible})
	}
}

// ClearFilterHandler makes every park visible again.
func ClearFilterHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		visible := sess.Engine.ClearFilter()
		return c.JSON(fiber.Map{"filter": nil, "visible": visible})
	}
}

// SelectionResponse pairs the selection state with the selected park.
type SelectionResponse struct {
	Selection domain.SelectionState `json:"selection"`
	Park      *domain.Park          `json:"park,omitempty"`
	Features  []domain.Category     `json:"features"`
}

func selectionResponse(snap domain.Snapshot) SelectionResponse {
	out := SelectionResponse{
		Selection: snap.Selection,
		Park:      snap.SelectedPark,
		Features:  []domain.Category{},
	}
	for _, cat := range domain.Categories {
		if snap.Features[cat] != nil {
			out.Features = append(out.Features, cat)
		}
	}
	return out
}

// GetSelectionHandler returns the selection and which layers have landed.
func GetSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(selectionResponse(sess.Engine.Snapshot()))
	}
}

type selectBody struct {
	ParkID any `json:"park_id"`
}

// SelectParkHandler enters detail mode. park_id may be a number or a
// string. Geometry loads in the background, so the reply is 202.
func SelectParkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var body selectBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := sess.Engine.SelectParkWithID(body.ParkID); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(selectionResponse(sess.Engine.Snapshot()))
	}
}

// ClearSelectionHandler returns to browsing.
func ClearSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		sess.Engine.ReturnToBrowsing()
		return c.JSON(selectionResponse(sess.Engine.Snapshot()))
	}
}

// FeatureGeometryHandler returns one geometry layer of the selected park.
func FeatureGeometryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		cat, err := domain.ParseCategory(c.Params("category"))
		if err != nil {
			return errFromDomain(c, err)
		}
		fg := sess.Engine.FeatureGeometry(cat)
		if fg == nil {
			return errNotFound(c, "geometry not loaded")
		}
		return c.JSON(fg)
	}
}

// TopologyHandler returns the topology blobs. ?layer=parks|trails returns
// one blob as-is.
func TopologyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		topo := sess.Engine.Topology()

		var blob domain.TopologyBlob
		switch layer := c.Query("layer"); layer {
		case "":
			return c.JSON(fiber.Map{
				"parks_loaded":  topo.Parks != nil,
				"trails_loaded": topo.Trails != nil,
				"topology":      topo,
			})
		case "parks":
			blob = topo.Parks
		case "trails":
			blob = topo.Trails
		default:
			return errBadRequest(c, "layer must be parks or trails")
		}
		if blob == nil {
			return errNotFound(c, "topology not loaded")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(blob)
	}
}

// GetLocationHandler returns the resolved user location.
func GetLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		loc, ok := sess.Engine.UserLocation()
		if !ok {
			return errNotFound(c, "user location unknown")
		}
		return c.JSON(fiber.Map{"lat": loc.Lat(), "lng": loc.Lng()})
	}
}

// SetLocationHandler replaces the user location, e.g. after the browser
// grants geolocation, and recomputes distances.
func SetLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := lookupSession(c, deps)
		if err != nil {
			return errFromDomain(c, err)
		}
		var body locationBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		loc, err := body.coordinate()
		if err != nil {
			return errFromDomain(c, err)
		}
		if loc == nil {
			return errBadRequest(c, "lat and lng are required")
		}
		sess.Engine.SetUserLocation(*loc)
		return c.JSON(fiber.Map{"lat": loc.Lat(), "lng": loc.Lng()})
	}
}

// StatusHandler reports session count and, for the Postgres source, the
// stored row counts.
func StatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		out := fiber.Map{"sessions": deps.Sessions.Count()}
		if deps.Parks != nil {
			counts, err := deps.Parks.Counts(c.UserContext())
			if err != nil {
				return errFromDomain(c, err)
			}
			out["catalog"] = counts
		}
		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(out)
	}
}

func versionETag(v uint64) string {
	return `"v` + strconv.FormatUint(v, 10) + `"`
}
