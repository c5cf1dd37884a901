package trip

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/search"
)

// TravelPreferences tune the full-trip planner. Zero values are filled
// in by DefaultTravelPreferences.
type TravelPreferences struct {
	VehicleType           string `json:"vehicle_type"`
	FoodPreference        string `json:"food_preference"`
	IsSmoker              bool   `json:"is_smoker"`
	Budget                string `json:"budget"`
	InterestedInAdventure bool   `json:"interested_in_adventure"`
	TravelMode            string `json:"travel_mode"`
}

// DefaultTravelPreferences returns the preferences assumed when the
// caller supplies none.
func DefaultTravelPreferences() TravelPreferences {
	return TravelPreferences{
		VehicleType:           "petrol",
		FoodPreference:        "both",
		IsSmoker:              false,
		Budget:                "midrange",
		InterestedInAdventure: true,
		TravelMode:            "any",
	}
}

// TravelState is the shared state of the non-suspending trip planner.
type TravelState struct {
	Query       string            `json:"query"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Preferences TravelPreferences `json:"preferences"`

	DestinationInfo   string `json:"destination_info,omitempty"`
	TransportInfo     string `json:"transport_info,omitempty"`
	AccommodationInfo string `json:"accommodation_info,omitempty"`
	ActivitiesInfo    string `json:"activities_info,omitempty"`
	FoodShoppingInfo  string `json:"food_shopping_info,omitempty"`
	RequirementsInfo  string `json:"requirements_info,omitempty"`
	EmergencyInfo     string `json:"emergency_info,omitempty"`

	Packages     map[string]any `json:"packages,omitempty"`
	FinalSummary string         `json:"final_summary,omitempty"`

	Errors map[string]string `json:"errors,omitempty"`
}

func (s *TravelState) RecordError(stage string, err error) {
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	s.Errors[stage] = err.Error()
}

// TravelResult is the wire shape of a full planner run.
type TravelResult struct {
	Success     bool              `json:"success"`
	Query       string            `json:"query"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Preferences TravelPreferences `json:"preferences"`

	DestinationInfo   string `json:"destination_info,omitempty"`
	TransportInfo     string `json:"transport_info,omitempty"`
	AccommodationInfo string `json:"accommodation_info,omitempty"`
	ActivitiesInfo    string `json:"activities_info,omitempty"`
	FoodShoppingInfo  string `json:"food_shopping_info,omitempty"`
	RequirementsInfo  string `json:"requirements_info,omitempty"`
	EmergencyInfo     string `json:"emergency_info,omitempty"`

	Packages     map[string]any `json:"packages,omitempty"`
	FinalSummary string         `json:"final_summary,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Destinations that make a trip international for an Indian traveler.
// Crude substring check, same trade-off as the keyword router: fast and
// right for the common cases.
var internationalDestinations = []string{
	"dubai", "singapore", "thailand", "bali", "maldives",
	"europe", "usa", "uk", "australia", "japan", "korea",
}

func isInternational(destination string) bool {
	d := strings.ToLower(destination)
	for _, intl := range internationalDestinations {
		if strings.Contains(d, intl) {
			return true
		}
	}
	return false
}

// TravelPlanner runs the eight-stage trip research pipeline end to end.
// Unlike the solo planner it never suspends; preferences come in up
// front or fall back to defaults.
type TravelPlanner struct {
	stageTools
	engine *Engine[*TravelState]
}

// NewTravelPlanner creates the planner and wires its stage list.
func NewTravelPlanner(logger *slog.Logger, client llm.Client, model string, mgr *search.Manager, store *RunStore) *TravelPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TravelPlanner{
		stageTools: stageTools{logger: logger, llm: client, model: model, search: mgr},
	}

	stages := []Stage[*TravelState]{
		{Name: "destination_researcher", Run: p.destinationResearcher},
		{Name: "transport_finder", Run: p.transportFinder},
		{Name: "accommodation_finder", Run: p.accommodationFinder},
		{Name: "activities_planner", Run: p.activitiesPlanner},
		{Name: "food_shopping_guide", Run: p.foodShoppingGuide},
		{Name: "travel_requirements", Run: p.travelRequirements},
		{Name: "emergency_safety", Run: p.emergencySafety},
		{Name: "package_builder", Run: p.packageBuilder},
	}
	p.engine = NewEngine(logger, stages, store, nil)
	return p
}

// Run executes all stages and assembles the result. Source and
// destination are extracted from the query when not supplied.
func (p *TravelPlanner) Run(ctx context.Context, threadID, query, source, destination string, prefs *TravelPreferences) (*TravelResult, error) {
	if source == "" || destination == "" {
		exSource, exDest := p.extractEndpoints(ctx, query)
		if source == "" {
			source = exSource
		}
		if destination == "" {
			destination = exDest
		}
	}

	preferences := DefaultTravelPreferences()
	if prefs != nil {
		preferences = *prefs
	}

	state := &TravelState{
		Query:       query,
		Source:      source,
		Destination: destination,
		Preferences: preferences,
	}

	outcome, err := p.engine.Start(ctx, threadID, state)
	if err != nil {
		return &TravelResult{Success: false, Query: query, Error: err.Error()}, nil
	}
	final := outcome.State

	result := &TravelResult{
		Success:           true,
		Query:             query,
		Source:            source,
		Destination:       destination,
		Preferences:       preferences,
		DestinationInfo:   final.DestinationInfo,
		TransportInfo:     final.TransportInfo,
		AccommodationInfo: final.AccommodationInfo,
		ActivitiesInfo:    final.ActivitiesInfo,
		FoodShoppingInfo:  final.FoodShoppingInfo,
		RequirementsInfo:  final.RequirementsInfo,
		EmergencyInfo:     final.EmergencyInfo,
		Packages:          final.Packages,
		FinalSummary:      final.FinalSummary,
	}
	if len(final.Errors) > 0 {
		parts := make([]string, 0, len(final.Errors))
		for stage, msg := range final.Errors {
			parts = append(parts, stage+": "+msg)
		}
		result.Error = strings.Join(parts, "; ")
	}
	return result, nil
}

// StageNames returns the pipeline's stage names in execution order.
func (p *TravelPlanner) StageNames() []string {
	names := make([]string, len(p.engine.stages))
	for i, s := range p.engine.stages {
		names[i] = s.Name
	}
	return names
}

var jsonObjectPattern = regexp.MustCompile(`\{[^}]+\}`)

// extractEndpoints pulls source and destination out of the free-text
// query, with the fixed fallbacks when the model cannot.
func (p *TravelPlanner) extractEndpoints(ctx context.Context, query string) (string, string) {
	source, destination := "your location", "unknown"

	reply, err := p.askJSON(ctx, fmt.Sprintf(`Extract the source (from) and destination (to) from this travel query:
"%s"

Return ONLY a JSON object like:
{"source": "Mumbai", "destination": "Goa"}

If source is not mentioned, use "your location".
If destination is not clear, return "unknown".`, query))
	if err != nil {
		return source, destination
	}

	doc := jsonObjectPattern.FindString(reply)
	if doc == "" {
		doc = reply
	}
	var extracted struct {
		Source      string `json:"source"`
		Destination string `json:"destination"`
	}
	if err := json.Unmarshal([]byte(doc), &extracted); err != nil {
		return source, destination
	}
	if extracted.Source != "" {
		source = extracted.Source
	}
	if extracted.Destination != "" {
		destination = extracted.Destination
	}
	return source, destination
}

func (p *TravelPlanner) destinationResearcher(ctx context.Context, state *TravelState) error {
	d := state.Destination
	places := p.searchResults(ctx, fmt.Sprintf("top tourist places to visit in %s attractions sightseeing", d), 5)
	weather := p.searchResults(ctx, fmt.Sprintf("weather in %s current temperature climate", d), 3)
	safety := p.searchResults(ctx, fmt.Sprintf("%s travel safety tourist safety crime rate travel advisory", d), 3)
	customs := p.searchResults(ctx, fmt.Sprintf("%s local customs culture language etiquette tips", d), 3)

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create a comprehensive destination guide for %s:

PLACES TO VISIT:
%s

WEATHER:
%s

SAFETY:
%s

LOCAL CUSTOMS:
%s

Please provide a structured summary with:
1. Top 5-7 Places to Visit (with brief descriptions)
2. Weather Overview (current conditions, best time to visit)
3. Safety Information (any warnings, general safety level)
4. Local Customs (dress code, tipping, language, etiquette)
5. Time Zone (difference from major Indian cities)

Keep it informative but concise.`, d,
		search.FormatResults(places, 5), search.FormatResults(weather, 3),
		search.FormatResults(safety, 3), search.FormatResults(customs, 3)))
	if err != nil {
		return fmt.Errorf("destination guide: %w", err)
	}
	state.DestinationInfo = info
	return nil
}

func (p *TravelPlanner) transportFinder(ctx context.Context, state *TravelState) error {
	src, dst := state.Source, state.Destination
	vehicleType := state.Preferences.VehicleType
	travelMode := state.Preferences.TravelMode

	flights := p.searchResults(ctx, fmt.Sprintf("flights from %s to %s price booking", src, dst), 3)
	trains := p.searchResults(ctx, fmt.Sprintf("trains from %s to %s IRCTC schedule fare", src, dst), 3)
	buses := p.searchResults(ctx, fmt.Sprintf("bus from %s to %s price timings", src, dst), 3)
	car := p.searchResults(ctx, fmt.Sprintf("road distance %s to %s route highway toll", src, dst), 3)

	evSection := ""
	if vehicleType == "ev" {
		ev := p.searchResults(ctx, fmt.Sprintf("EV charging stations %s to %s highway electric vehicle", src, dst), 3)
		evSection = "\nEV CHARGING STATIONS:\n" + search.FormatResults(ev, 3)
	}
	restSection := ""
	if travelMode == "car" || travelMode == "any" || travelMode == "bus" {
		rest := p.searchResults(ctx, fmt.Sprintf("rest stops washrooms petrol pumps restaurants highway %s to %s", src, dst), 3)
		restSection = "\nREST STOPS & WASHROOMS:\n" + search.FormatResults(rest, 3)
	}

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create a transport guide from %s to %s:

User's vehicle preference: %s
User's travel mode preference: %s

FLIGHTS:
%s

TRAINS:
%s

BUSES:
%s

CAR ROUTE:
%s
%s
%s

Please provide a structured summary with:
1. Flight Options (airlines, approximate prices, duration)
2. Train Options (trains, classes, prices, duration)
3. Bus Options (operators, prices, duration, pickup points)
4. Car Route: distance, estimated time, fuel cost (petrol @Rs100/L at 12km/L, diesel @Rs90/L at 15km/L, EV 6km/kWh), toll charges, total driving cost
5. Rest stops and washrooms along the highway with approximate distances from %s
6. Pickup points (airports, stations) and where the user will arrive`,
		src, dst, vehicleType, travelMode,
		search.FormatResults(flights, 3), search.FormatResults(trains, 3),
		search.FormatResults(buses, 3), search.FormatResults(car, 3),
		evSection, restSection, src))
	if err != nil {
		return fmt.Errorf("transport guide: %w", err)
	}
	state.TransportInfo = info
	return nil
}

// budgetSearchTerms maps the budget preference to hotel search phrasing.
var budgetSearchTerms = map[string]string{
	"budget":   "budget cheap affordable hostel",
	"midrange": "3 star 4 star mid range",
	"luxury":   "5 star luxury resort premium",
}

func (p *TravelPlanner) accommodationFinder(ctx context.Context, state *TravelState) error {
	d := state.Destination
	budget := state.Preferences.Budget

	hotels := p.searchResults(ctx, fmt.Sprintf("best hotels in %s %s central location", d, budgetSearchTerms[budget]), 5)
	reviews := p.searchResults(ctx, fmt.Sprintf("best rated hotels %s safe secure good reviews", d), 3)
	local := p.searchResults(ctx, fmt.Sprintf("local transport in %s taxi auto rickshaw rent scooter", d), 3)

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create an accommodation guide for %s:

User's budget preference: %s

HOTELS:
%s

REVIEWS:
%s

LOCAL TRANSPORT:
%s

Please provide:
1. Top 3-5 Hotel Recommendations: name, location, approximate price per night, why it's good, star rating if available
2. How to Reach Hotels: from airport, railway station, bus stand with costs
3. Local Transport from Hotel: scooter rental per day, taxi services, auto availability, local transport apps

Prioritize hotels that are centrally located, well-reviewed for safety, and near main transport.`,
		d, budget, search.FormatResults(hotels, 5), search.FormatResults(reviews, 3), search.FormatResults(local, 3)))
	if err != nil {
		return fmt.Errorf("accommodation guide: %w", err)
	}
	state.AccommodationInfo = info
	return nil
}

func (p *TravelPlanner) activitiesPlanner(ctx context.Context, state *TravelState) error {
	d := state.Destination
	adventure := state.Preferences.InterestedInAdventure

	attractions := p.searchResults(ctx, fmt.Sprintf("tourist attractions in %s sightseeing must visit", d), 5)
	adventureSection := ""
	if adventure {
		results := p.searchResults(ctx, fmt.Sprintf("adventure sports activities in %s water sports trekking", d), 4)
		adventureSection = "\nADVENTURE ACTIVITIES:\n" + search.FormatResults(results, 4)
	}
	hidden := p.searchResults(ctx, fmt.Sprintf("hidden gems off beat places %s local secrets", d), 3)
	fees := p.searchResults(ctx, fmt.Sprintf("entry fees ticket prices tourist places %s", d), 3)

	adventureAsk := ""
	if adventure {
		adventureAsk = "2. Adventure & Sports Activities: water sports, trekking options, approximate costs\n"
	}
	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create an activities guide for %s:

User interested in adventure: %t

TOURIST ATTRACTIONS:
%s
%s

HIDDEN GEMS:
%s

ENTRY FEES:
%s

Please provide:
1. Must-Visit Tourist Attractions (top 5-7): name, brief description, entry fee, best time to visit, how to reach
%s3. Hidden Gems (off-beat places locals love)
4. Estimated Activity Budget: entry fee total, activity costs, money-saving tips`,
		d, adventure, search.FormatResults(attractions, 5), adventureSection,
		search.FormatResults(hidden, 3), search.FormatResults(fees, 3), adventureAsk))
	if err != nil {
		return fmt.Errorf("activities guide: %w", err)
	}
	state.ActivitiesInfo = info
	return nil
}

// foodSearchTerms maps the food preference to restaurant search phrasing.
var foodSearchTerms = map[string]string{
	"veg":    "vegetarian pure veg",
	"nonveg": "non vegetarian seafood meat",
	"both":   "best restaurants",
}

func (p *TravelPlanner) foodShoppingGuide(ctx context.Context, state *TravelState) error {
	d := state.Destination
	foodPref := state.Preferences.FoodPreference
	smoker := state.Preferences.IsSmoker

	foodTerm := foodSearchTerms[foodPref]
	if foodTerm == "" {
		foodTerm = "best restaurants"
	}

	restaurants := p.searchResults(ctx, fmt.Sprintf("best %s restaurants in %s famous food", foodTerm, d), 5)
	cuisine := p.searchResults(ctx, fmt.Sprintf("famous local food cuisine must try dishes %s", d), 3)
	shopping := p.searchResults(ctx, fmt.Sprintf("famous markets shopping places in %s clothing souvenirs", d), 4)

	smokingSection := ""
	if smoker {
		results := p.searchResults(ctx, fmt.Sprintf("smoking allowed areas cafes bars %s", d), 2)
		smokingSection = "\nSMOKING-FRIENDLY PLACES:\n" + search.FormatResults(results, 2)
	}

	prefRules := ""
	switch foodPref {
	case "veg":
		prefRules = "Only recommend vegetarian/pure veg restaurants.\n"
	case "nonveg":
		prefRules = "Include seafood and non-veg specialties.\n"
	}
	smokingAsk := ""
	if smoker {
		smokingAsk = "4. Smoking-Friendly Places: cafes, bars, areas where smoking is allowed\n"
	}

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create a food & shopping guide for %s:

User's food preference: %s
User is smoker: %t

RESTAURANTS:
%s

LOCAL CUISINE:
%s

SHOPPING:
%s
%s

%sPlease provide:
1. Restaurant Recommendations (5-7 places): name, cuisine type, price range, famous dishes
2. Must-Try Local Dishes and where to find the best version
3. Shopping Guide: famous markets, best places for clothing, souvenirs, bargaining tips
%s5. Estimated Food Budget: budget meal, mid-range meal, fine dining`,
		d, foodPref, smoker,
		search.FormatResults(restaurants, 5), search.FormatResults(cuisine, 3),
		search.FormatResults(shopping, 4), smokingSection, prefRules, smokingAsk))
	if err != nil {
		return fmt.Errorf("food and shopping guide: %w", err)
	}
	state.FoodShoppingInfo = info
	return nil
}

func (p *TravelPlanner) travelRequirements(ctx context.Context, state *TravelState) error {
	d, src := state.Destination, state.Source
	international := isInternational(d)

	var sections strings.Builder
	if international {
		visa := p.searchResults(ctx, fmt.Sprintf("visa requirements for Indian passport %s visa on arrival", d), 3)
		sim := p.searchResults(ctx, fmt.Sprintf("best SIM card for tourists in %s prepaid internet", d), 2)
		currency := p.searchResults(ctx, fmt.Sprintf("currency exchange rate INR to %s currency where to exchange", d), 2)
		vaccination := p.searchResults(ctx, fmt.Sprintf("vaccination requirements %s from India health", d), 2)
		fmt.Fprintf(&sections, "VISA:\n%s\n\nSIM CARDS:\n%s\n\nCURRENCY:\n%s\n\nVACCINATION:\n%s\n\n",
			search.FormatResults(visa, 3), search.FormatResults(sim, 2),
			search.FormatResults(currency, 2), search.FormatResults(vaccination, 2))
	}
	tips := p.searchResults(ctx, fmt.Sprintf("travel tips %s what to pack useful apps", d), 3)
	fmt.Fprintf(&sections, "TRAVEL TIPS:\n%s", search.FormatResults(tips, 3))

	scope := "1. Documents Needed: ID proof requirements, any permits needed\n"
	if international {
		scope = `1. Visa Requirements: visa on arrival availability, documents, fees, processing time
2. SIM Card Options: best tourist providers, where to buy, approximate cost
3. Currency: local currency, exchange rate, where to exchange, card acceptance
4. Vaccination: required and recommended vaccinations
5. Power Adapter: plug type and voltage
`
	}

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create a travel requirements guide for %s:

Traveling from: %s
International trip: %t

SEARCH RESULTS:
%s

Please provide:
%s6. Useful Apps: maps, local transport, translation, food delivery
7. Packing Tips based on weather
8. Additional Charges: tourist taxes, special-area entry fees`,
		d, src, international, sections.String(), scope))
	if err != nil {
		return fmt.Errorf("requirements guide: %w", err)
	}
	state.RequirementsInfo = info
	return nil
}

func (p *TravelPlanner) emergencySafety(ctx context.Context, state *TravelState) error {
	d := state.Destination
	international := isInternational(d)

	hospitals := p.searchResults(ctx, fmt.Sprintf("best hospitals in %s 24 hours emergency", d), 3)
	pharmacies := p.searchResults(ctx, fmt.Sprintf("24 hour pharmacy medical store %s", d), 2)
	safety := p.searchResults(ctx, fmt.Sprintf("tourist scams %s areas to avoid safety tips", d), 3)

	embassySection := ""
	embassyAsk := ""
	if international {
		results := p.searchResults(ctx, fmt.Sprintf("Indian embassy consulate in %s contact address", d), 2)
		embassySection = "\nEMBASSY:\n" + search.FormatResults(results, 2)
		embassyAsk = "Include the Indian Embassy/Consulate address, phone, and emergency number.\n"
	}

	info, err := p.ask(ctx, fmt.Sprintf(`Based on the following search results, create an emergency & safety guide for %s:

International trip: %t

HOSPITALS:
%s

PHARMACIES:
%s

SAFETY:
%s
%s

Please provide:
1. Emergency Contacts: hospitals with addresses and phones, 24-hour pharmacies, police helpline, tourist helpline
%s2. Safety Warnings: areas to avoid at night, common tourist scams, general tips
3. Emergency Numbers: police, ambulance, fire, tourist helpline
4. Medical Tips: basic medicines to carry, travel insurance recommendation`,
		d, international, search.FormatResults(hospitals, 3),
		search.FormatResults(pharmacies, 2), search.FormatResults(safety, 3),
		embassySection, embassyAsk))
	if err != nil {
		return fmt.Errorf("emergency guide: %w", err)
	}
	state.EmergencyInfo = info
	return nil
}

// packageTiers are the three themed packages the builder produces, in
// ascending price order.
var packageTiers = []string{"budget", "comfort", "luxury"}

func (p *TravelPlanner) packageBuilder(ctx context.Context, state *TravelState) error {
	src, dst := state.Source, state.Destination
	prefs, _ := json.Marshal(state.Preferences)

	research := fmt.Sprintf(`DESTINATION:
%s

TRANSPORT:
%s

ACCOMMODATION:
%s

ACTIVITIES:
%s

FOOD & SHOPPING:
%s

REQUIREMENTS:
%s

EMERGENCY:
%s`,
		state.DestinationInfo, state.TransportInfo, state.AccommodationInfo,
		state.ActivitiesInfo, state.FoodShoppingInfo, state.RequirementsInfo,
		state.EmergencyInfo)

	summary, err := p.ask(ctx, fmt.Sprintf(`You are a travel agent creating 3 travel packages for a trip from %s to %s.

USER PREFERENCES:
%s

ALL RESEARCH:
%s

Start with a brief, friendly trip overview:

**Your Trip to %s**
- Route: %s to %s
- Duration: [X days based on typical trip]
- Weather: [brief summary from destination info]
- Highlights: [top 3-4 must-visit places from activities info]
- Quick Tip: [one useful tip for this destination]

Then present 3 packages, each with a daily itinerary, specific hotel
tier, transport choice, and total price estimate in rupees:

PACKAGE 1 - BUDGET: hostels/budget hotels, bus or sleeper train, street food, free attractions. Cheapest workable trip.
PACKAGE 2 - COMFORT: 3-4 star hotel, flight or AC train, mix of restaurants, main paid attractions. Best value for money.
PACKAGE 3 - LUXURY: 5 star resort, flights, fine dining, private transport, premium experiences.

For each package include a comparison-friendly price and why someone
would pick it.

End with:
"Prices are estimates based on current search results. Please verify before booking. Have a safe and enjoyable trip!"`,
		src, dst, prefs, research, dst, src, dst))
	if err != nil {
		return fmt.Errorf("build packages: %w", err)
	}

	packages := map[string]any{"generated_at": time.Now().Format(time.RFC3339)}
	for _, tier := range packageTiers {
		packages[tier] = fmt.Sprintf("%s package: %s to %s", tier, src, dst)
	}
	state.Packages = packages
	state.FinalSummary = summary
	return nil
}
