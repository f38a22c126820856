package discovery

import (
	"fmt"
	"strings"

	"github.com/forkline/expansion-cli/internal/model"
)

// systemPrompt is the discovery instruction shared across all regions.
const systemPrompt = `You are a commercial real-estate analyst specializing in restaurant site selection. You identify candidate locations for new restaurant openings inside a target region.

Rules:
- Return valid JSON for every response
- Propose real, specific locations (named plazas, corridors, intersections, developments), not generic areas
- Coordinates must fall inside the target region
- quality is 0.0-1.0: how strong the site is for a restaurant of this chain's profile
- site_type is one of: inline, endcap, freestanding, food_hall, mixed_use, drive_thru
- Do not propose two sites at the same address`

// BuildUserMessage constructs the discovery request for a region.
func BuildUserMessage(region model.Region, maxCandidates int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `Find up to %d candidate locations for a new restaurant in the following region:

Region: %s
City: %s, %s
Center: %.5f, %.5f
Radius: %.1f km`,
		maxCandidates, region.Name, region.City, region.State,
		region.CenterLat, region.CenterLon, region.RadiusKM)

	if region.Brief != "" {
		fmt.Fprintf(&sb, "\n\nOperator brief: %s", region.Brief)
	}

	sb.WriteString(`

Respond with ONLY valid JSON in this format:
{
  "candidates": [
    {
      "name": "<site or plaza name>",
      "address": "<street address>",
      "city": "<city>",
      "state": "<state>",
      "lat": <latitude>,
      "lon": <longitude>,
      "site_type": "<inline|endcap|freestanding|food_hall|mixed_use|drive_thru>",
      "quality": <0.0 to 1.0>,
      "rationale": "<one sentence on why this site fits>"
    }
  ]
}`)
	return sb.String()
}
