package domain

import dErrors "pinksync/pkg/domain-errors"

// Intent is the enumerated category of an accessibility event.
// Invariant: the value must be one of the registered intents below.
type Intent string

const (
	IntentVisualOnly        Intent = "visual_only"
	IntentSignLanguage      Intent = "sign_language"
	IntentReducedMotion     Intent = "reduced_motion"
	IntentHighContrast      Intent = "high_contrast"
	IntentCaptionsMandatory Intent = "captions_mandatory"
	IntentNoAudioCues       Intent = "no_audio_cues"
	IntentVisualAlerts      Intent = "visual_alerts"
	IntentTextPrimary       Intent = "text_primary"
)

// validIntents is the single source of truth for the intent enum.
var validIntents = map[Intent]bool{
	IntentVisualOnly:        true,
	IntentSignLanguage:      true,
	IntentReducedMotion:     true,
	IntentHighContrast:      true,
	IntentCaptionsMandatory: true,
	IntentNoAudioCues:       true,
	IntentVisualAlerts:      true,
	IntentTextPrimary:       true,
}

// Intents returns the full taxonomy in a stable order.
func Intents() []Intent {
	return []Intent{
		IntentVisualOnly,
		IntentSignLanguage,
		IntentReducedMotion,
		IntentHighContrast,
		IntentCaptionsMandatory,
		IntentNoAudioCues,
		IntentVisualAlerts,
		IntentTextPrimary,
	}
}

// ParseIntent constructs an Intent from external input.
func ParseIntent(s string) (Intent, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "intent cannot be empty")
	}
	i := Intent(s)
	if !i.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown intent %q", s)
	}
	return i, nil
}

// IsValid checks if the intent is a member of the registered enum.
func (i Intent) IsValid() bool { return validIntents[i] }

func (i Intent) String() string { return string(i) }
