package evidence

var messages = map[ReasonCode]string{
	ReasonAIGenerated:         "This photo looks AI-generated or edited. Please take a new photo of the issue with your camera.",
	ReasonLocationMismatch:    "This photo was taken too far from the reported location. Please photograph the issue on site.",
	ReasonDuplicateImage:      "This photo was already used for another report. Please take a fresh photo.",
	ReasonNoEXIF:              "This photo has no camera information. Please capture it directly with your camera app.",
	ReasonNoGPS:               "The photo has no location data, so the location could not be confirmed.",
	ReasonStalePhoto:          "The photo seems to be older than a day.",
	ReasonScorerUnavailable:   "We could not check this photo right now. Please try again in a moment.",
	ReasonMalformedImage:      "The file could not be read as an image. Please upload a JPEG or PNG photo.",
	ReasonIndexUnavailable:    "We could not check this photo right now. Please try again in a moment.",
	ReasonValidationAbandoned: "The photo check did not finish. Please upload the photo again.",
}

// Message returns the citizen-facing explanation for a reason code.
func Message(code ReasonCode) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "The photo could not be verified."
}
