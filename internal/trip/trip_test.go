package trip

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/nugget/sherpa-ai-agent/internal/llm"

	_ "modernc.org/sqlite"
)

type scriptedClient struct {
	replies []string
	calls   [][]llm.Message
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	c.calls = append(c.calls, append([]llm.Message(nil), messages...))
	if len(c.replies) == 0 {
		return nil, fmt.Errorf("script exhausted")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: reply}, Done: true}, nil
}

func (c *scriptedClient) ChatStream(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return c.Chat(ctx, model, messages, opts)
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func newSoloPlanner(client llm.Client) *SoloPlanner {
	return NewSoloPlanner(nil, client, "test-model", nil, NewRunStore(nil, nil))
}

func TestSoloStartSuspendsForPreferences(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"origin": "Delhi", "destination": "Manali"}`,
		"540",
		"Manali is a mountain town...",
		"Volvo bus, NH44 by road, nearest airport Bhuntar.",
	}}
	p := newSoloPlanner(client)

	resp, err := p.Start(context.Background(), "Plan a solo trip from Delhi to Manali", "trip-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if resp.Status != StatusAwaitingInput {
		t.Fatalf("status = %q, want %q", resp.Status, StatusAwaitingInput)
	}
	if resp.Message != "Please provide your travel preferences to continue." {
		t.Errorf("message = %q", resp.Message)
	}

	state := resp.InterruptData
	if state == nil {
		t.Fatal("interrupt_data missing")
	}
	if state.Origin != "Delhi" || state.Destination != "Manali" {
		t.Errorf("route = %s -> %s", state.Origin, state.Destination)
	}
	if state.DistanceKM != 540 {
		t.Errorf("distance = %d, want 540", state.DistanceKM)
	}
	if state.DestinationInfo == "" || state.TransportOptions == "" {
		t.Error("pre-suspension stages did not populate state")
	}
	if state.HumanQuestions["type"] != "solo_trip_preferences" {
		t.Errorf("question type = %v", state.HumanQuestions["type"])
	}
}

func TestSoloResumeCompletesPackage(t *testing.T) {
	start := &scriptedClient{replies: []string{
		`{"origin": "Delhi", "destination": "Manali"}`,
		"540",
		"Mountain town at 2000m.",
		"Bus, road, flight to Bhuntar.",
	}}
	p := newSoloPlanner(start)
	if _, err := p.Start(context.Background(), "solo trip Delhi to Manali", "trip-2"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// EV with 400 km range at 80% charge: usable range 256 km, so the
	// 540 km leg needs charging stops.
	p.stageTools.llm = &scriptedClient{replies: []string{
		`[{"location": "Murthal", "km_from_start": 100, "charger": "DC Fast"}]`,
		"Leave at 5am, stop every 2 hours.",
		"Old Manali hostels around 800/night.",
		"Hike to Jogini falls, cafe hopping.",
		"Try siddu and trout at local dhabas.",
		"Kullu shawls at Manu market.",
		"Carry ID, warm layers, power bank.",
		"Dial 112. Mission hospital en route.",
	}}

	resp, err := p.Resume(context.Background(), "trip-2", map[string]any{
		"travel_mode":       "personal_vehicle",
		"vehicle_make":      "Tata",
		"vehicle_model":     "Nexon EV",
		"fuel_type":         "ev",
		"ev_range":          float64(400),
		"current_charge":    float64(80),
		"food_preference":   "veg",
		"budget_level":      "budget",
		"accommodation_type": "hostel",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resp.Status != StatusComplete {
		t.Fatalf("status = %q, want %q", resp.Status, StatusComplete)
	}

	pkg := resp.FinalPackage
	for _, want := range []string{
		"# 🎒 Solo Trip Package: Delhi → Manali",
		"**Distance:** 540 km (approx)",
		"EV Charging Stops",
		"Murthal",
		"Mountain town at 2000m.",
		"Food Guide (veg)",
		"**Happy Solo Travels! Stay safe! 🚗✨**",
	} {
		if !strings.Contains(pkg, want) {
			t.Errorf("package missing %q", want)
		}
	}

	// The completed state appears at the stored package endpoint too.
	stored, err := p.Package("trip-2")
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if stored != pkg {
		t.Error("stored package differs from response package")
	}
}

func TestSoloResumePetrolSkipsChargingStops(t *testing.T) {
	start := &scriptedClient{replies: []string{
		`{"origin": "Pune", "destination": "Goa"}`,
		"450",
		"Beaches.",
		"Road or train.",
	}}
	p := newSoloPlanner(start)
	if _, err := p.Start(context.Background(), "solo Pune to Goa", "trip-3"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resume := &scriptedClient{replies: []string{
		"Take NH48.", "Hostels in Anjuna.", "Surfing.", "Fish thali.",
		"Flea markets.", "Carry license.", "Dial 112.",
	}}
	p.stageTools.llm = resume

	resp, err := p.Resume(context.Background(), "trip-3", map[string]any{
		"travel_mode":  "personal_vehicle",
		"vehicle_make": "Maruti",
		"fuel_type":    "petrol",
	})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if strings.Contains(resp.FinalPackage, "EV Charging Stops") {
		t.Error("petrol vehicle should not get charging stops")
	}
	if len(resume.replies) != 0 {
		t.Errorf("%d scripted replies unused", len(resume.replies))
	}
}

func TestSoloStageFailuresStillProducePackage(t *testing.T) {
	// Only the route extraction succeeds; every later model call fails.
	// The run must still suspend, resume, and build a package with N/A
	// sections rather than abort.
	p := newSoloPlanner(&scriptedClient{replies: []string{
		`{"origin": "Delhi", "destination": "Jaipur"}`,
	}})

	start, err := p.Start(context.Background(), "solo Delhi to Jaipur", "trip-4")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.Status != StatusAwaitingInput {
		t.Fatalf("status = %q", start.Status)
	}
	if start.InterruptData.DistanceKM != defaultDistanceKM {
		t.Errorf("distance = %d, want default %d", start.InterruptData.DistanceKM, defaultDistanceKM)
	}
	if len(start.InterruptData.Errors) == 0 {
		t.Error("stage failures not recorded")
	}

	resp, err := p.Resume(context.Background(), "trip-4", map[string]any{"travel_mode": "train"})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resp.Status != StatusComplete {
		t.Fatalf("status = %q", resp.Status)
	}
	if !strings.Contains(resp.FinalPackage, "N/A") {
		t.Error("missing sections should render as N/A")
	}
	if !strings.Contains(resp.FinalPackage, "Delhi → Jaipur") {
		t.Error("package lost the route")
	}
}

func TestSoloResumeUnknownThread(t *testing.T) {
	p := newSoloPlanner(&scriptedClient{})
	if _, err := p.Resume(context.Background(), "no-such-thread", nil); err == nil {
		t.Fatal("expected error for unknown thread")
	}
}

func TestApplyPreferencesVehicleOnlyForPersonal(t *testing.T) {
	state := &SoloState{}
	applyPreferences(state, map[string]any{
		"travel_mode":  "train",
		"vehicle_make": "Tata",
	})
	if state.VehicleDetails != nil {
		t.Error("vehicle details should only be set for personal_vehicle")
	}

	state = &SoloState{}
	applyPreferences(state, map[string]any{
		"travel_mode": "personal_vehicle",
		"ev_range":    "350",
	})
	if state.VehicleDetails == nil {
		t.Fatal("vehicle details missing")
	}
	if state.VehicleDetails.FuelType != "petrol" {
		t.Errorf("fuel type = %q, want default petrol", state.VehicleDetails.FuelType)
	}
	if state.VehicleDetails.EVRange != 350 {
		t.Errorf("ev_range = %d, want 350 from string input", state.VehicleDetails.EVRange)
	}
}

func TestTravelPlannerRun(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"Beaches, forts, best in winter.",
		"Flights from 3500, Vande Bharat, buses overnight.",
		"Hotels near Baga from 2500/night.",
		"Water sports at Calangute.",
		"Fish curry rice, Saturday night market.",
		"Carry government ID.",
		"Dial 112, GMC hospital Panaji.",
		"Your Trip to Goa... three packages...",
	}}
	p := NewTravelPlanner(nil, client, "test-model", nil, NewRunStore(nil, nil))

	result, err := p.Run(context.Background(), "travel-1", "plan a trip", "Mumbai", "Goa", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatalf("success = false, error = %q", result.Error)
	}
	if result.Source != "Mumbai" || result.Destination != "Goa" {
		t.Errorf("route = %s -> %s", result.Source, result.Destination)
	}
	if result.Preferences != DefaultTravelPreferences() {
		t.Errorf("preferences = %+v, want defaults", result.Preferences)
	}
	if result.FinalSummary != "Your Trip to Goa... three packages..." {
		t.Errorf("final_summary = %q", result.FinalSummary)
	}
	for _, tier := range []string{"budget", "comfort", "luxury"} {
		if _, ok := result.Packages[tier]; !ok {
			t.Errorf("packages missing %q tier", tier)
		}
	}
	if _, ok := result.Packages["generated_at"]; !ok {
		t.Error("packages missing generated_at")
	}
	if result.DestinationInfo == "" || result.EmergencyInfo == "" {
		t.Error("stage outputs missing from result")
	}
	if len(client.replies) != 0 {
		t.Errorf("%d scripted replies unused", len(client.replies))
	}
}

func TestTravelPlannerExtractsEndpoints(t *testing.T) {
	client := &scriptedClient{replies: []string{
		`{"source": "Mumbai", "destination": "Goa"}`,
		"d", "t", "a", "act", "f", "r", "e", "summary",
	}}
	p := NewTravelPlanner(nil, client, "test-model", nil, NewRunStore(nil, nil))

	result, err := p.Run(context.Background(), "travel-2", "plan a trip from Mumbai to Goa", "", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Source != "Mumbai" || result.Destination != "Goa" {
		t.Errorf("route = %s -> %s", result.Source, result.Destination)
	}
}

func TestTravelPlannerExtractionFallbacks(t *testing.T) {
	client := &scriptedClient{} // every call fails
	p := NewTravelPlanner(nil, client, "test-model", nil, NewRunStore(nil, nil))

	result, err := p.Run(context.Background(), "travel-3", "somewhere nice", "", "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Source != "your location" {
		t.Errorf("source = %q, want fallback", result.Source)
	}
	if result.Destination != "unknown" {
		t.Errorf("destination = %q, want fallback", result.Destination)
	}
	if result.Error == "" {
		t.Error("stage failures should surface in error field")
	}
}

func TestIsInternational(t *testing.T) {
	if isInternational("Jaipur") {
		t.Error("Jaipur should be domestic")
	}
	if !isInternational("Dubai Marina") {
		t.Error("Dubai should be international")
	}
}

func TestRunStoreSQLRoundTrip(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	backend, err := NewSQLRuns(db)
	if err != nil {
		t.Fatalf("NewSQLRuns: %v", err)
	}
	store := NewRunStore(backend, nil)

	if err := store.Save(&Run{ThreadID: "r1", NextStage: 3, State: []byte(`{"query":"x"}`)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	run, err := store.Load("r1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if run.NextStage != 3 || string(run.State) != `{"query":"x"}` {
		t.Errorf("round trip: stage=%d state=%s", run.NextStage, run.State)
	}

	// Overwrite advances the stage.
	if err := store.Save(&Run{ThreadID: "r1", NextStage: 7, State: []byte(`{}`)}); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	run, err = store.Load("r1")
	if err != nil {
		t.Fatalf("Load after overwrite: %v", err)
	}
	if run.NextStage != 7 {
		t.Errorf("next_stage = %d, want 7", run.NextStage)
	}

	if !store.Delete("r1") {
		t.Error("Delete should report the run existed")
	}
	if _, err := store.Load("r1"); err == nil {
		t.Error("Load after delete should fail")
	}
}

func TestRenderPackageHTML(t *testing.T) {
	html, err := RenderPackageHTML("Trip", "# Heading\n\nSome **bold** text.")
	if err != nil {
		t.Fatalf("RenderPackageHTML: %v", err)
	}
	s := string(html)
	for _, want := range []string{"<!DOCTYPE html>", "<title>Trip</title>", "<h1", "<strong>bold</strong>"} {
		if !strings.Contains(s, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestPackageQR(t *testing.T) {
	png, err := PackageQR("http://localhost:8080/agent/solo-trip/package/t1", 0)
	if err != nil {
		t.Fatalf("PackageQR: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Error("output is not a PNG")
	}
}
