package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/search"
)

// Fallback distances when research could not establish one: a long
// highway run for the initial estimate, a shorter hop once the user's
// preferences arrive without it.
const (
	defaultDistanceKM  = 500
	fallbackDistanceKM = 200
)

// EV defaults applied when the user leaves range or charge blank.
const (
	defaultEVRangeKM = 300
	defaultChargePct = 100
)

// VehicleDetails describes the user's own vehicle for road trips.
type VehicleDetails struct {
	Make          string `json:"make"`
	Model         string `json:"model"`
	FuelType      string `json:"fuel_type"`
	EVRange       int    `json:"ev_range,omitempty"`
	CurrentCharge int    `json:"current_charge,omitempty"`
}

// SoloState is the shared state record of the solo-trip workflow. Every
// stage reads what it needs and writes its own fields; the terminal
// stage assembles all of it into the final package.
type SoloState struct {
	Query       string `json:"query"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	DistanceKM  int    `json:"distance_km"`

	DestinationInfo  string `json:"destination_info,omitempty"`
	TransportOptions string `json:"transport_options,omitempty"`

	HumanQuestions map[string]any `json:"human_questions,omitempty"`

	TravelMode        string          `json:"travel_mode,omitempty"`
	VehicleDetails    *VehicleDetails `json:"vehicle_details,omitempty"`
	FoodPreference    string          `json:"food_preference,omitempty"`
	BudgetLevel       string          `json:"budget_level,omitempty"`
	AccommodationType string          `json:"accommodation_type,omitempty"`

	PersonalizedTransport string           `json:"personalized_transport,omitempty"`
	ChargingStops         []map[string]any `json:"charging_stops,omitempty"`
	AccommodationPlan     string           `json:"accommodation_plan,omitempty"`
	ActivitiesPlan        string           `json:"activities_plan,omitempty"`
	FoodGuide             string           `json:"food_guide,omitempty"`
	ShoppingGuide         string           `json:"shopping_guide,omitempty"`
	Requirements          string           `json:"requirements,omitempty"`
	EmergencyInfo         string           `json:"emergency_info,omitempty"`
	FinalPackage          string           `json:"final_package,omitempty"`

	Errors map[string]string `json:"errors,omitempty"`
}

// RecordError implements the engine's error contract: stage failures
// land here and the run keeps going.
func (s *SoloState) RecordError(stage string, err error) {
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	s.Errors[stage] = err.Error()
}

// StartResponse is the wire shape of a started solo-trip run.
type StartResponse struct {
	Status        string     `json:"status"`
	ThreadID      string     `json:"thread_id"`
	InterruptData *SoloState `json:"interrupt_data,omitempty"`
	Message       string     `json:"message,omitempty"`
	Result        *SoloState `json:"result,omitempty"`
}

// ResumeResponse is the wire shape of a resumed, completed run.
type ResumeResponse struct {
	Status       string `json:"status"`
	ThreadID     string `json:"thread_id"`
	FinalPackage string `json:"final_package"`
}

// SoloPlanner plans solo trips through the suspendable workflow engine.
type SoloPlanner struct {
	stageTools
	store  *RunStore
	engine *Engine[*SoloState]
}

// NewSoloPlanner creates the solo-trip planner and wires its stage list.
func NewSoloPlanner(logger *slog.Logger, client llm.Client, model string, mgr *search.Manager, store *RunStore) *SoloPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SoloPlanner{
		stageTools: stageTools{logger: logger, llm: client, model: model, search: mgr},
		store:      store,
	}

	stages := []Stage[*SoloState]{
		{Name: "destination_research", Run: p.destinationResearch},
		{Name: "transport_discovery", Run: p.transportDiscovery},
		{Name: "human_preferences", Run: p.humanPreferences},
		{Name: "personalized_transport", Run: p.personalizedTransport},
		{Name: "accommodation", Run: p.accommodation},
		{Name: "activities", Run: p.activities},
		{Name: "food_guide", Run: p.foodGuide},
		{Name: "shopping_guide", Run: p.shoppingGuide},
		{Name: "requirements", Run: p.requirements},
		{Name: "emergency", Run: p.emergency},
		{Name: "package_builder", Run: p.packageBuilder},
	}
	p.engine = NewEngine(logger, stages, store, applyPreferences)
	return p
}

// Start runs the workflow until the human-preferences stage suspends it.
func (p *SoloPlanner) Start(ctx context.Context, query, threadID string) (*StartResponse, error) {
	state := &SoloState{Query: query}
	outcome, err := p.engine.Start(ctx, threadID, state)
	if err != nil {
		return nil, err
	}

	if outcome.Status == StatusAwaitingInput {
		return &StartResponse{
			Status:        StatusAwaitingInput,
			ThreadID:      threadID,
			InterruptData: outcome.State,
			Message:       "Please provide your travel preferences to continue.",
		}, nil
	}
	return &StartResponse{
		Status:   StatusComplete,
		ThreadID: threadID,
		Result:   outcome.State,
	}, nil
}

// Resume continues a suspended run with the user's preferences.
func (p *SoloPlanner) Resume(ctx context.Context, threadID string, preferences map[string]any) (*ResumeResponse, error) {
	outcome, err := p.engine.Resume(ctx, threadID, &SoloState{}, preferences)
	if err != nil {
		return nil, err
	}
	return &ResumeResponse{
		Status:       StatusComplete,
		ThreadID:     threadID,
		FinalPackage: outcome.State.FinalPackage,
	}, nil
}

// Package returns the final package markdown for a completed run.
func (p *SoloPlanner) Package(threadID string) (string, error) {
	run, err := p.store.Load(threadID)
	if err != nil {
		return "", err
	}
	var state SoloState
	if err := json.Unmarshal(run.State, &state); err != nil {
		return "", fmt.Errorf("decode run state: %w", err)
	}
	if state.FinalPackage == "" {
		return "", fmt.Errorf("run %s has no package yet", threadID)
	}
	return state.FinalPackage, nil
}

// applyPreferences merges the resume payload into the suspended state,
// doing what the tail of the human-preferences stage would have done.
func applyPreferences(state *SoloState, input map[string]any) {
	state.TravelMode = str(input, "travel_mode")
	state.FoodPreference = str(input, "food_preference")
	state.BudgetLevel = str(input, "budget_level")
	state.AccommodationType = str(input, "accommodation_type")

	if state.TravelMode == "personal_vehicle" {
		fuel := str(input, "fuel_type")
		if fuel == "" {
			fuel = "petrol"
		}
		state.VehicleDetails = &VehicleDetails{
			Make:          str(input, "vehicle_make"),
			Model:         str(input, "vehicle_model"),
			FuelType:      fuel,
			EVRange:       num(input, "ev_range"),
			CurrentCharge: num(input, "current_charge"),
		}
	}
}

// distancePattern matches "759 km", "800km", and "1,200 km".
var distancePattern = regexp.MustCompile(`(\d{1,2},?\d{3}|\d{2,4})\s*km`)

func (p *SoloPlanner) destinationResearch(ctx context.Context, state *SoloState) error {
	origin, destination, err := p.extractRoute(ctx, state.Query)
	if err != nil {
		return fmt.Errorf("extract route: %w", err)
	}
	state.Origin = origin
	state.Destination = destination

	destResults := p.searchResults(ctx, destination+" tourist information weather best time to visit", 3)
	distResults := p.searchResults(ctx, fmt.Sprintf("distance from %s to %s by road km", origin, destination), 2)

	state.DistanceKM = p.extractDistance(ctx, origin, destination, distResults)

	summary, err := p.ask(ctx, fmt.Sprintf(`Summarize destination info for a solo trip from %s to %s:

Destination Info: %s
Distance Info: %s

Provide:
1. Distance in km (approximate)
2. Best time to visit
3. Weather expectations
4. Solo traveler tips for this destination

Keep it concise (100-150 words).`, origin, destination, search.FormatResults(destResults, 3), search.FormatResults(distResults, 2)))
	if err != nil {
		return fmt.Errorf("summarize destination: %w", err)
	}
	state.DestinationInfo = summary
	return nil
}

func (p *SoloPlanner) transportDiscovery(ctx context.Context, state *SoloState) error {
	results := p.searchResults(ctx, fmt.Sprintf("how to travel from %s to %s by road train flight bus", state.Origin, state.Destination), 3)

	summary, err := p.ask(ctx, fmt.Sprintf(`List all transport options from %s to %s (Distance: %d km):

Search Results: %s

Provide brief summary of:
1. By Road (personal vehicle) - time, route
2. By Train - major trains, time
3. By Flight - if available
4. By Bus - options

Keep it brief (80-100 words).`, state.Origin, state.Destination, state.DistanceKM, search.FormatResults(results, 3)))
	if err != nil {
		return fmt.Errorf("summarize transport: %w", err)
	}
	state.TransportOptions = summary
	return nil
}

// humanPreferences suspends the run: the question set goes back to the
// caller and the workflow waits for a resume request.
func (p *SoloPlanner) humanPreferences(ctx context.Context, state *SoloState) error {
	questions := PreferenceQuestions(state.Origin, state.Destination, state.DistanceKM)
	state.HumanQuestions = questions
	return &Suspension{Prompt: questions}
}

func (p *SoloPlanner) personalizedTransport(ctx context.Context, state *SoloState) error {
	distance := state.DistanceKM
	if distance == 0 {
		distance = fallbackDistanceKM
	}
	mode := state.TravelMode
	if mode == "" {
		mode = "personal_vehicle"
	}

	if mode == "personal_vehicle" && state.VehicleDetails != nil && state.VehicleDetails.FuelType == "ev" {
		state.ChargingStops = p.planChargingStops(ctx, state, distance)
	}

	vehicle := "N/A"
	if state.VehicleDetails != nil {
		doc, _ := json.Marshal(state.VehicleDetails)
		vehicle = string(doc)
	}
	stopKind := "Fuel stops"
	if state.VehicleDetails != nil && state.VehicleDetails.FuelType == "ev" {
		stopKind = "EV charging stops"
	}

	plan, err := p.ask(ctx, fmt.Sprintf(`Create a personalized transport plan for solo trip from %s to %s.

User Preferences:
- Travel Mode: %s
- Vehicle: %s
- Distance: %d km

Include:
1. Best route
2. Estimated time
3. Rest stops every 2-3 hours
4. %s
5. Safe night halt locations (if journey > 8 hours)
6. Toll information
7. Solo driver safety tips

Keep it practical and detailed (200 words).`, state.Origin, state.Destination, mode, vehicle, distance, stopKind))
	if err != nil {
		return fmt.Errorf("transport plan: %w", err)
	}
	state.PersonalizedTransport = plan
	return nil
}

// planChargingStops works out whether the EV can make the trip on its
// current charge and, if not, asks the model for a stop list grounded in
// a charging-station search.
func (p *SoloPlanner) planChargingStops(ctx context.Context, state *SoloState, distance int) []map[string]any {
	v := state.VehicleDetails
	evRange := v.EVRange
	if evRange == 0 {
		evRange = defaultEVRangeKM
	}
	charge := v.CurrentCharge
	if charge == 0 {
		charge = defaultChargePct
	}

	usableRange := (float64(evRange) * float64(charge) / 100) * 0.8
	if float64(distance) <= usableRange {
		return nil
	}

	numStops := int(float64(distance)/(float64(evRange)*0.7)) + 1
	results := p.searchResults(ctx, fmt.Sprintf("EV charging stations %s to %s highway", state.Origin, state.Destination), 3)

	reply, err := p.askJSON(ctx, fmt.Sprintf(`Plan EV charging stops for %s to %s (%d km).

EV Details:
- Car: %s %s
- Range: %d km
- Current Charge: %d%%

Search Results: %s

Suggest %d charging stops with:
- Location name
- Approximate km from start
- Charger type (DC Fast/AC)
- Estimated charging time

Format as a JSON array of objects.`, state.Origin, state.Destination, distance,
		v.Make, v.Model, evRange, charge, search.FormatResults(results, 3), numStops))

	fallback := []map[string]any{{"note": "Charging stations along highway"}}
	if err != nil {
		return fallback
	}
	var stops []map[string]any
	if err := json.Unmarshal([]byte(reply), &stops); err != nil || len(stops) == 0 {
		// The model may wrap the array in an object.
		var wrapped map[string][]map[string]any
		if err := json.Unmarshal([]byte(reply), &wrapped); err == nil {
			for _, s := range wrapped {
				return s
			}
		}
		return fallback
	}
	return stops
}

func (p *SoloPlanner) accommodation(ctx context.Context, state *SoloState) error {
	budget := orDefault(state.BudgetLevel, "mid_range")
	accType := orDefault(state.AccommodationType, "hotel")

	results := p.searchResults(ctx, fmt.Sprintf("solo traveler %s %s %s", accType, state.Destination, budget), 2)
	plan, err := p.ask(ctx, fmt.Sprintf(`Recommend accommodation for solo traveler in %s:
- Type: %s
- Budget: %s

Search: %s

Suggest 2-3 options with prices. Focus on solo-traveler friendly places.`, state.Destination, accType, budget, search.FormatResults(results, 2)))
	if err != nil {
		return fmt.Errorf("accommodation: %w", err)
	}
	state.AccommodationPlan = plan
	return nil
}

func (p *SoloPlanner) activities(ctx context.Context, state *SoloState) error {
	budget := orDefault(state.BudgetLevel, "mid_range")

	results := p.searchResults(ctx, "solo traveler things to do "+state.Destination, 2)
	plan, err := p.ask(ctx, fmt.Sprintf(`Suggest solo-friendly activities in %s:
Search: %s

Focus on:
- Activities good for solo travelers
- Mix of adventure and relaxation
- Budget: %s`, state.Destination, search.FormatResults(results, 2), budget))
	if err != nil {
		return fmt.Errorf("activities: %w", err)
	}
	state.ActivitiesPlan = plan
	return nil
}

func (p *SoloPlanner) foodGuide(ctx context.Context, state *SoloState) error {
	foodPref := orDefault(state.FoodPreference, "non_veg")
	budget := orDefault(state.BudgetLevel, "mid_range")

	restaurants := p.searchResults(ctx, fmt.Sprintf("%s restaurants %s %s", foodPref, state.Destination, budget), 2)
	dishes := p.searchResults(ctx, fmt.Sprintf("famous local food dishes cuisine %s must try", state.Destination), 2)

	guide, err := p.ask(ctx, fmt.Sprintf(`Create a comprehensive food guide for solo traveler in %s:

User Preference: %s
Budget: %s

Restaurant Search: %s
Local Dishes Search: %s

Provide:
- 5-6 must-try local dishes with brief descriptions and veg/non-veg markers
- 3-4 recommended restaurants matching the preference, with area and price range
- Famous street food spots and hygiene tips for solo travelers
- Solo dining tips (best times, counter seating)

Make it practical and appetizing!`, state.Destination, foodPref, budget,
		search.FormatResults(restaurants, 2), search.FormatResults(dishes, 2)))
	if err != nil {
		return fmt.Errorf("food guide: %w", err)
	}
	state.FoodGuide = guide
	return nil
}

func (p *SoloPlanner) shoppingGuide(ctx context.Context, state *SoloState) error {
	budget := orDefault(state.BudgetLevel, "mid_range")

	shops := p.searchResults(ctx, fmt.Sprintf("shopping places markets souvenirs %s tourist", state.Destination), 3)
	specialties := p.searchResults(ctx, fmt.Sprintf("what to buy famous products handicrafts %s", state.Destination), 2)

	guide, err := p.ask(ctx, fmt.Sprintf(`Create a shopping guide for solo traveler in %s:

Budget Level: %s

Shopping Search: %s
Specialty Search: %s

Provide:
- 5-6 famous local products/souvenirs with price ranges
- Best shopping spots: local markets (timings), malls, government emporiums
- Bargaining tips and scam red flags
- Packing and shipping advice for fragile or large items

Make it practical for a solo shopper!`, state.Destination, budget,
		search.FormatResults(shops, 3), search.FormatResults(specialties, 2)))
	if err != nil {
		return fmt.Errorf("shopping guide: %w", err)
	}
	state.ShoppingGuide = guide
	return nil
}

func (p *SoloPlanner) requirements(ctx context.Context, state *SoloState) error {
	reqs, err := p.ask(ctx, fmt.Sprintf(`Solo travel requirements for %s:
- Travel mode: %s

Include:
- Documents needed
- Safety tips for solo travelers
- Things to pack
- Emergency contacts`, state.Destination, state.TravelMode))
	if err != nil {
		return fmt.Errorf("requirements: %w", err)
	}
	state.Requirements = reqs
	return nil
}

func (p *SoloPlanner) emergency(ctx context.Context, state *SoloState) error {
	results := p.searchResults(ctx, fmt.Sprintf("emergency contacts hospitals %s highway %s", state.Destination, state.Origin), 2)

	info, err := p.ask(ctx, fmt.Sprintf(`Emergency information for solo trip %s to %s:

Search: %s

Provide:
- Emergency numbers
- Hospitals along route
- Police stations
- Roadside assistance`, state.Origin, state.Destination, search.FormatResults(results, 2)))
	if err != nil {
		return fmt.Errorf("emergency info: %w", err)
	}
	state.EmergencyInfo = info
	return nil
}

func (p *SoloPlanner) packageBuilder(ctx context.Context, state *SoloState) error {
	state.FinalPackage = BuildSoloPackage(state)
	return nil
}

// extractRoute asks the model for origin and destination as JSON.
func (p *SoloPlanner) extractRoute(ctx context.Context, query string) (string, string, error) {
	reply, err := p.askJSON(ctx, fmt.Sprintf(`Extract origin and destination from this trip query:
"%s"

Return JSON: {"origin": "city name", "destination": "city name"}`, query))
	if err != nil {
		return "", "", err
	}

	var route struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal([]byte(reply), &route); err != nil {
		return "", "", fmt.Errorf("parse route: %w", err)
	}
	if route.Origin == "" {
		route.Origin = "Unknown"
	}
	if route.Destination == "" {
		route.Destination = "Unknown"
	}
	return route.Origin, route.Destination, nil
}

// extractDistance tries the search snippets first, then the model, then
// the fixed default.
func (p *SoloPlanner) extractDistance(ctx context.Context, origin, destination string, results []search.Result) int {
	for _, r := range results {
		if m := distancePattern.FindStringSubmatch(r.Snippet); m != nil {
			if km, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				return km
			}
		}
	}

	reply, err := p.ask(ctx, fmt.Sprintf(`Extract the road distance in km from %s to %s.
Search results: %s

Return ONLY a number (e.g., 750). If not found, estimate based on cities.`,
		origin, destination, search.FormatResults(results, 2)))
	if err == nil {
		if m := regexp.MustCompile(`\d+`).FindString(reply); m != "" {
			if km, err := strconv.Atoi(m); err == nil {
				return km
			}
		}
	}
	return defaultDistanceKM
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// num reads an int out of a decoded JSON map, where numbers arrive as
// float64 and form clients may send strings.
func num(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(v))
		return n
	}
	return 0
}
