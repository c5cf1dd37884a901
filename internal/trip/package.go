package trip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// BuildSoloPackage assembles the final trip package markdown from
// whatever the stages managed to produce. Missing sections render as
// N/A rather than dropping out, so partial runs still yield a usable
// document.
func BuildSoloPackage(state *SoloState) string {
	distance := state.DistanceKM
	if distance == 0 {
		distance = defaultDistanceKM
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 🎒 Solo Trip Package: %s → %s\n\n", state.Origin, state.Destination)
	fmt.Fprintf(&b, "**Distance:** %d km (approx)\n", distance)
	fmt.Fprintf(&b, "**Travel Mode:** %s\n", orDefault(state.TravelMode, "N/A"))
	fmt.Fprintf(&b, "**Budget Level:** %s\n\n", orDefault(state.BudgetLevel, "N/A"))

	section(&b, "## 📍 Destination Overview", state.DestinationInfo)
	section(&b, "## 🚗 Your Personalized Transport Plan", state.PersonalizedTransport)

	if len(state.ChargingStops) > 0 {
		stops, _ := json.MarshalIndent(state.ChargingStops, "", "  ")
		b.WriteString("### 🔋 EV Charging Stops\n")
		b.Write(stops)
		b.WriteString("\n\n---\n\n")
	}

	section(&b, "## 🏨 Accommodation", state.AccommodationPlan)
	section(&b, "## 🎯 Activities", state.ActivitiesPlan)
	section(&b, fmt.Sprintf("## 🍽️ Food Guide (%s)", orDefault(state.FoodPreference, "N/A")), state.FoodGuide)
	section(&b, "## 🛍️ Shopping Guide", state.ShoppingGuide)
	section(&b, "## 📋 Requirements & Checklist", state.Requirements)
	section(&b, "## 🆘 Emergency Information", state.EmergencyInfo)

	b.WriteString("**Happy Solo Travels! Stay safe! 🚗✨**\n")
	return b.String()
}

func section(b *strings.Builder, heading, body string) {
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(orDefault(body, "N/A"))
	b.WriteString("\n\n---\n\n")
}

var packageMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderPackageHTML converts a package's markdown into a standalone HTML
// page suitable for viewing on a phone mid-trip.
func RenderPackageHTML(title, markdown string) ([]byte, error) {
	var body bytes.Buffer
	if err := packageMarkdown.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("render package: %w", err)
	}

	var page bytes.Buffer
	fmt.Fprintf(&page, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 0 auto; padding: 1rem 1.5rem; line-height: 1.6; }
h1, h2 { border-bottom: 1px solid #ddd; padding-bottom: .3rem; }
pre { background: #f6f8fa; padding: .75rem; border-radius: 6px; overflow-x: auto; }
hr { border: none; border-top: 1px solid #ddd; margin: 1.5rem 0; }
</style>
</head>
<body>
`, title)
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}

// PackageQR encodes a package URL as a PNG QR image so the plan can be
// pulled up on a phone before leaving.
func PackageQR(url string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
