package service

import (
	"strings"

	"github.com/prperemyshlev/photo-enhancer/internal/domain"
)

const (
	enhancementBase   = "Make this photo better for Airbnb and Booking.com listings."
	enhancementFooter = "The result should look professional and appealing for rental listings while maintaining authenticity."

	nightConversionPrompt = "Convert this daytime photo of the property into a realistic night scene for Airbnb and Booking.com listings. " +
		"Darken the sky to a deep evening blue, switch on the interior and exterior lights so the windows glow warmly, " +
		"and keep the architecture, layout, furniture and camera angle exactly as they are. " +
		"The result should look like a professional twilight photograph of the same place."
)

var intensityInstructions = map[string]string{
	domain.LevelMinimal:   "Make MINIMAL changes - only subtle improvements. Keep the photo very close to the original. Preserve the original look and feel as much as possible.",
	domain.LevelModerate:  "Make MODERATE improvements - enhance the photo noticeably but keep it natural and authentic.",
	domain.LevelExtensive: "Make EXTENSIVE improvements - significantly enhance the photo. Apply substantial enhancements to lighting, colors, and overall quality.",
}

var detailInstructions = map[string]string{
	domain.LevelMinimal:   "Do NOT add many details. Keep it simple and natural. Avoid adding objects, decorations, or elements that weren't in the original photo.",
	domain.LevelModerate:  "Add MODERATE details - enhance existing elements naturally without adding many new objects. You can add also such details that mainly used during photoshoot.",
	domain.LevelExtensive: "You can ADD MORE DETAILS to enhance the photo - add subtle decorative elements, improve textures, enhance small details that make the space more appealing.",
}

// BuildPrompt returns the enhancer instructions for a job. Levels are
// normalized first; night conversion ignores them.
func BuildPrompt(kind, intensity, detail string) string {
	if domain.NormalizeKind(kind) == domain.KindNightConversion {
		return nightConversionPrompt
	}

	return strings.Join([]string{
		enhancementBase,
		intensityInstructions[domain.NormalizeLevel(intensity)],
		detailInstructions[domain.NormalizeLevel(detail)],
		enhancementFooter,
	}, " ")
}
