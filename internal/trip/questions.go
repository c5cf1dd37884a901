package trip

import "fmt"

// PreferenceQuestions builds the structured question set shown to the
// user when the solo-trip workflow suspends. Field ids match the keys
// expected back in the resume payload; showIf drives conditional fields
// in the client form.
func PreferenceQuestions(origin, destination string, distanceKM int) map[string]any {
	return map[string]any{
		"type":    "solo_trip_preferences",
		"message": fmt.Sprintf("Let's personalize your solo trip from %s to %s (%d km)!", origin, destination, distanceKM),
		"fields": []map[string]any{
			{
				"id":    "travel_mode",
				"type":  "select",
				"label": "How would you like to travel?",
				"options": []map[string]any{
					{"value": "personal_vehicle", "label": "Personal Vehicle"},
					{"value": "public_transport", "label": "Public Transport (Train/Bus)"},
					{"value": "taxi", "label": "Taxi/Cab"},
					{"value": "flight", "label": "Flight"},
				},
				"required": true,
			},
			{
				"id":          "vehicle_make",
				"type":        "text",
				"label":       "Car Make (if personal vehicle)",
				"placeholder": "e.g., Tata, Mahindra, Hyundai",
				"showIf":      map[string]any{"travel_mode": "personal_vehicle"},
			},
			{
				"id":          "vehicle_model",
				"type":        "text",
				"label":       "Car Model",
				"placeholder": "e.g., Nexon EV, XUV700",
				"showIf":      map[string]any{"travel_mode": "personal_vehicle"},
			},
			{
				"id":    "fuel_type",
				"type":  "select",
				"label": "Fuel Type",
				"options": []map[string]any{
					{"value": "petrol", "label": "Petrol"},
					{"value": "diesel", "label": "Diesel"},
					{"value": "cng", "label": "CNG"},
					{"value": "ev", "label": "Electric (EV)"},
				},
				"showIf": map[string]any{"travel_mode": "personal_vehicle"},
			},
			{
				"id":          "ev_range",
				"type":        "number",
				"label":       "EV Range (km per full charge)",
				"placeholder": "e.g., 350",
				"showIf":      map[string]any{"fuel_type": "ev"},
			},
			{
				"id":          "current_charge",
				"type":        "number",
				"label":       "Current Battery (%)",
				"placeholder": "e.g., 100",
				"showIf":      map[string]any{"fuel_type": "ev"},
			},
			{
				"id":    "food_preference",
				"type":  "select",
				"label": "Food Preference",
				"options": []map[string]any{
					{"value": "veg", "label": "Vegetarian"},
					{"value": "non_veg", "label": "Non-Vegetarian"},
					{"value": "vegan", "label": "Vegan"},
					{"value": "eggetarian", "label": "Eggetarian"},
				},
				"required": true,
			},
			{
				"id":    "budget_level",
				"type":  "select",
				"label": "Budget Level",
				"options": []map[string]any{
					{"value": "budget", "label": "Budget (₹500-1500/day)"},
					{"value": "mid_range", "label": "Mid-Range (₹1500-4000/day)"},
					{"value": "premium", "label": "Premium (₹4000+/day)"},
				},
				"required": true,
			},
			{
				"id":    "accommodation_type",
				"type":  "select",
				"label": "Accommodation Preference",
				"options": []map[string]any{
					{"value": "hotel", "label": "Hotel"},
					{"value": "hostel", "label": "Hostel"},
					{"value": "airbnb", "label": "Airbnb/Homestay"},
					{"value": "camping", "label": "Camping"},
					{"value": "none", "label": "No Stay (Day Trip)"},
				},
				"required": true,
			},
		},
	}
}
