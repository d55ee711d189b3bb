package analysis

import (
	"strings"

	"video-narrator/core/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlaceholderTranscript stands in when transcription is unavailable.
const PlaceholderTranscript = "This is a demo video showcasing an innovative SaaS application. " +
	"The user demonstrates various features including user interface elements, core functionality, and key benefits. " +
	"The application appears to be designed for productivity and user engagement with modern interface patterns."

// FallbackFeatures returns the fixed feature list used when analysis fails.
func FallbackFeatures(appName string) models.FeatureList {
	return models.FeatureList{Features: []models.Feature{
		{
			Name:        "Auto Content Generator",
			StartTime:   "00:00:06,000",
			EndTime:     "00:00:12,000",
			Description: "User demonstrates automatic content generation with different tones",
		},
		{
			Name:        "Personal Writing Assistant",
			StartTime:   "00:00:12,000",
			EndTime:     "00:00:18,000",
			Description: "Shows AI-powered writing assistance and editing capabilities",
		},
		{
			Name:        strings.TrimSpace(appName) + " Core Features",
			StartTime:   "00:00:18,000",
			EndTime:     "00:00:24,000",
			Description: "Main functionality demonstration and user interface walkthrough",
		},
	}}
}

// FallbackScript builds the deterministic six-segment script. The output
// depends only on appName and description; the template does not change the copy.
func FallbackScript(appName, description, _ string) models.Script {
	appName = strings.TrimSpace(appName)
	lower := cases.Lower(language.Und).String(strings.TrimSpace(description))

	return models.Script{Segments: []models.Segment{
		{
			StartTime: "00:00:00,000",
			EndTime:   "00:00:05,000",
			Caption:   "Discover the power of " + appName + ".",
			Type:      "hook",
			Feature:   "intro",
		},
		{
			StartTime: "00:00:05,000",
			EndTime:   "00:00:10,000",
			Caption:   "Revolutionize your " + lower + " workflow.",
			Type:      "value",
			Feature:   "benefit",
		},
		{
			StartTime: "00:00:10,000",
			EndTime:   "00:00:15,000",
			Caption:   "See how easy it is to get started with our intuitive interface.",
			Type:      "demo",
			Feature:   "main",
		},
		{
			StartTime: "00:00:15,000",
			EndTime:   "00:00:20,000",
			Caption:   "Powerful features designed to save you time and boost productivity.",
			Type:      "feature",
			Feature:   "benefits",
		},
		{
			StartTime: "00:00:20,000",
			EndTime:   "00:00:25,000",
			Caption:   "Join thousands who are already succeeding with " + appName + ".",
			Type:      "social_proof",
			Feature:   "testimonial",
		},
		{
			StartTime: "00:00:25,000",
			EndTime:   "00:00:30,000",
			Caption:   "Ready to transform your workflow? Get started today!",
			Type:      "cta",
			Feature:   "outro",
		},
	}}
}
