package tools

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
)

// placesFieldMask selects the place fields returned by the text search.
var placesFieldMask = strings.Join([]string{
	"places.displayName",
	"places.formattedAddress",
	"places.location",
	"places.types",
	"places.rating",
	"places.userRatingCount",
	"places.priceLevel",
	"places.id",
	"places.photos",
	"places.regularOpeningHours.weekdayDescriptions",
	"places.editorialSummary",
	"places.internationalPhoneNumber",
	"places.websiteUri",
	"places.primaryType",
	"places.shortFormattedAddress",
	"places.businessStatus",
}, ",")

const placesSchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "minLength": 1,
      "description": "Query optimizado para Google Places Text Search. Debe incluir el tipo de lugar, la actividad, con quién sale el usuario y la ubicación."
    },
    "session_id": {
      "type": "string",
      "description": "ID de sesión para almacenar resultados"
    },
    "place_type": {
      "type": "string",
      "enum": ["restaurant", "bar", "night_club"],
      "description": "Tipo específico de lugar: 'restaurant' (restaurantes, cafeterías, comida), 'bar' (bares, pubs, cócteles), 'night_club' (discotecas, clubs nocturnos, vida nocturna)"
    }
  },
  "required": ["query", "session_id", "place_type"]
}`

// PlaceSearch queries the places text search API and hands the raw place
// records to the orchestrator through the handoff cache.
type PlaceSearch struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	pageSize int
	handoff  *cache.Handoff
	log      *logging.Logger
}

// NewPlaceSearch creates the places text search tool.
func NewPlaceSearch(client *http.Client, cfg config.PlacesConfig, handoff *cache.Handoff, log *logging.Logger) *PlaceSearch {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = config.DefaultPlacesBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return &PlaceSearch{
		client:   client,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		handoff:  handoff,
		log:      log,
	}
}

func (t *PlaceSearch) Name() string { return PlacesToolName }

func (t *PlaceSearch) Description() string {
	return "Busca lugares (restaurantes, bares, discotecas, ocio) con Google Places Text Search " +
		"a partir de la intención del usuario y devuelve la lista de nombres encontrados, " +
		"o un mensaje de error si la solicitud falla."
}

func (t *PlaceSearch) InputSchema() string { return placesSchema }

type placeArgs struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	PlaceType string `json:"place_type"`
}

type placeRecord struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
}

func (t *PlaceSearch) Execute(ctx context.Context, input string) (string, error) {
	var args placeArgs
	if err := decodeArgs(input, &args); err != nil {
		return "", err
	}
	sessionID, _ := identity(ctx, args.SessionID, "")
	log := t.log.Session(sessionID).Tool(PlacesToolName)

	// A failed search must not leave an older result in the slot.
	if sessionID != "" {
		if err := t.handoff.DropPlaces(ctx, sessionID); err != nil {
			log.Warn().Err(err).Msg("dropping stale places failed")
		}
	}

	body, err := json.Marshal(map[string]any{
		"textQuery": args.Query,
		"pageSize":  t.pageSize,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/places:searchText", bytes.NewReader(body))
	if err != nil {
		return requestFailure(err), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", t.apiKey)
	req.Header.Set("X-Goog-FieldMask", placesFieldMask)

	start := time.Now()
	data, status, err := fetch(t.client, req)
	log.Debug().
		Str("placeType", args.PlaceType).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("places search")
	if err != nil {
		log.Warn().Err(err).Msg("places request failed")
		return requestFailure(err), nil
	}
	if status != http.StatusOK {
		log.Warn().Int("status", status).Msg("places search rejected")
		return statusFailure(status, data), nil
	}

	var resp struct {
		Places []jsonRaw `json:"places"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return decodeFailure(err), nil
	}

	records := resp.Places
	if records == nil {
		records = []jsonRaw{}
	}
	names := make([]string, 0, len(records))
	for _, raw := range records {
		var p placeRecord
		if err := json.Unmarshal(raw, &p); err != nil {
			return decodeFailure(err), nil
		}
		names = append(names, p.DisplayName.Text)
	}

	if sessionID != "" {
		payload, err := json.Marshal(records)
		if err == nil {
			err = t.handoff.PutPlaces(ctx, sessionID, payload, args.Query)
		}
		if err != nil {
			log.Warn().Err(err).Msg("caching places failed")
		}
	}

	return encodeResult(names), nil
}
