// Package normalize maps heterogeneous, authority-specific source records
// into the flat row shape, applying fallback chains for title, coordinates,
// and derived classification fields.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/geocode"
	"github.com/gridwatch/collector-cli/internal/model"
)

// maxTitleLen caps fallback titles derived from descriptions.
const maxTitleLen = 140

// Field alias tables: candidate source keys per logical attribute, tried in
// priority order. Authorities name the same field differently, so these are
// declarative lists rather than ad hoc conditionals.
var (
	idAliases        = []string{"name", "uid", "id"}
	latAliases       = []string{"lat", "latitude"}
	lngAliases       = []string{"lng", "lon", "longitude"}
	authorityAliases = []string{"area_name", "authority", "auth"}
	stateAliases     = []string{"app_state", "status"}
	postcodeAliases  = []string{"postcode", "postal_code", "zipcode"}
)

// Normalizer converts raw source records into rows. The geocode resolver is
// optional; without it the postcode fallback step is skipped.
type Normalizer struct {
	geo *geocode.Resolver
}

// New creates a Normalizer. Pass a nil resolver to disable postcode lookups.
func New(geo *geocode.Resolver) *Normalizer {
	return &Normalizer{geo: geo}
}

// PlanningRecord normalizes one planning-application record. The record may
// be a bare property map or a GeoJSON feature carrying "properties" and
// "geometry"; both shapes occur within a single response.
func (n *Normalizer) PlanningRecord(ctx context.Context, raw map[string]any) (model.Row, error) {
	if raw == nil {
		return nil, eris.New("normalize: nil record")
	}

	props := raw
	var geometry map[string]any
	if p, ok := raw["properties"].(map[string]any); ok {
		props = p
	}
	if g, ok := raw["geometry"].(map[string]any); ok {
		geometry = g
	} else if g, ok := props["location"].(map[string]any); ok {
		// Some responses inline the geometry as a "location" object.
		geometry = g
	}

	row := model.Row{}

	id := firstString(props, idAliases)
	if id == "" {
		return nil, eris.New("normalize: record has no identifier")
	}
	row[model.IDField] = id

	desc := stringify(props["description"])
	row["description"] = desc
	row["title"] = title(stringify(props["title"]), desc)
	row["authority"] = firstString(props, authorityAliases)

	other, _ := props["other_fields"].(map[string]any)
	decision := stringify(props["decision"])
	if decision == "" && other != nil {
		decision = stringify(other["decision"])
	}
	appState := firstString(props, stateAliases)
	row["decision"] = decision
	row["app_state"] = appState
	row["status_class"] = ClassifyStatus(decision, appState)

	if ha, ok := SiteAreaHa(other); ok {
		row["site_area_ha"] = formatFloat(ha)
	}

	n.resolveCoords(ctx, row, props, geometry)

	if geometry != nil {
		if t := stringify(geometry["type"]); t != "" {
			row["geometry_type"] = t
		}
		if gj, err := json.Marshal(geometry); err == nil {
			row["geometry_geojson"] = string(gj)
		}
	}

	// Pass the remaining scalar fields through as strings.
	for k, v := range props {
		if _, taken := row[k]; taken {
			continue
		}
		switch k {
		case "other_fields", "properties", "geometry", "location":
			continue
		}
		row[k] = stringify(v)
	}

	return row, nil
}

// resolveCoords applies the coordinate fallback chain: inline lat/lng fields,
// then a GeoJSON Point geometry, then a postcode lookup. GeoJSON orders
// coordinates [lng, lat]; the row always carries them the conventional way
// round.
func (n *Normalizer) resolveCoords(ctx context.Context, row model.Row, props, geometry map[string]any) {
	lat, latOK := toFloat(firstValue(props, latAliases))
	lng, lngOK := toFloat(firstValue(props, lngAliases))

	if (!latOK || !lngOK) && geometry != nil {
		if pt, ok := pointFromGeoJSON(geometry); ok {
			lng, lat = pt.X(), pt.Y()
			latOK, lngOK = true, true
		}
	}

	if (!latOK || !lngOK) && n.geo != nil {
		if pc := firstString(props, postcodeAliases); pc != "" {
			if c, ok := n.geo.Lookup(ctx, pc); ok {
				lat, lng = c.Lat, c.Lng
				latOK, lngOK = true, true
			}
		}
	}

	if latOK && lngOK {
		row["lat"] = formatFloat(lat)
		row["lng"] = formatFloat(lng)
	} else {
		row["lat"] = ""
		row["lng"] = ""
	}
}

// pointFromGeoJSON decodes a geometry object and returns it if it is a Point.
func pointFromGeoJSON(geometry map[string]any) (*geom.Point, bool) {
	raw, err := json.Marshal(geometry)
	if err != nil {
		return nil, false
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		zap.L().Debug("unparseable geometry", zap.Error(err))
		return nil, false
	}
	pt, ok := g.(*geom.Point)
	if !ok || pt.Coords() == nil || len(pt.Coords()) < 2 {
		return nil, false
	}
	return pt, true
}

// title returns the explicit title, or the first whitespace-collapsed line of
// the description truncated with an ellipsis marker.
func title(explicit, description string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	line := description
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	line = strings.Join(strings.Fields(line), " ")
	if len(line) > maxTitleLen {
		line = line[:maxTitleLen-3] + "..."
	}
	return line
}

// firstString returns the first non-empty stringified value among the keys.
func firstString(props map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := props[k]; ok {
			if s := stringify(v); strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

// firstValue returns the first present, non-nil value among the keys.
func firstValue(props map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := props[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// stringify renders any JSON value as a string. Numbers drop trailing
// decimal zeros, bools become "true"/"false", nested structures render as
// compact JSON, nil becomes the empty string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatFloat(t)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// toFloat coerces a JSON value to a float64, tolerating numeric strings with
// thousands separators.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
