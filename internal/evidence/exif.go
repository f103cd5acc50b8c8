package evidence

import (
	"bytes"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/grievancegenie/platform/internal/shared/types"
)

// Extractor reads embedded photo metadata. A photo without metadata is not
// an error; it yields EXIF{Present: false}.
type Extractor interface {
	Extract(image []byte) (EXIF, error)
}

// ExifExtractor implements Extractor with goexif.
type ExifExtractor struct{}

func NewExifExtractor() ExifExtractor {
	return ExifExtractor{}
}

func (ExifExtractor) Extract(image []byte) (EXIF, error) {
	// Non-critical decode errors still return usable tags.
	x, _ := exif.Decode(bytes.NewReader(image))
	if x == nil {
		return EXIF{}, nil
	}

	out := EXIF{Present: true}

	if lat, lng, err := x.LatLong(); err == nil {
		p := types.GeoPoint{Lat: lat, Lng: lng}
		if p.Validate() == nil && !(lat == 0 && lng == 0) {
			out.GPS = &p
		}
	}

	if ts, err := x.DateTime(); err == nil && !ts.IsZero() {
		ts = ts.UTC()
		out.Timestamp = &ts
	}

	out.Camera = camera(stringTag(x, exif.Make), stringTag(x, exif.Model))

	return out, nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}

// camera joins make and model, dropping the make when the model repeats it
// ("Canon" + "Canon EOS 80D").
func camera(maker, model string) string {
	switch {
	case maker == "":
		return model
	case model == "":
		return maker
	case strings.HasPrefix(strings.ToLower(model), strings.ToLower(maker)):
		return model
	default:
		return maker + " " + model
	}
}

// Stale reports whether a photo taken at ts is older than window at now.
func Stale(ts *time.Time, now time.Time, window time.Duration) bool {
	return ts != nil && now.Sub(*ts) > window
}
