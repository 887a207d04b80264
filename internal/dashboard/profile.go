package dashboard

import (
	"errors"
	"fmt"

	"dashboard/internal/models"
)

var ErrUnknownProfile = errors.New("unknown profile")

// Profile captures the differences between the dashboard variants so one
// controller can serve both.
type Profile struct {
	Name string
	// OrientationControl exposes the horizontal/vertical bar layout switch.
	// Without it the layout stays horizontal.
	OrientationControl bool
	// Descriptions carries IndicatorDescription into options and chart
	// descriptions.
	Descriptions bool
	// PlaceholdersNeedIndicator hides the map and table placeholders until an
	// indicator is selected.
	PlaceholdersNeedIndicator bool
	// PromptUnselected shows a "please select" message on chart tabs when no
	// indicator is selected.
	PromptUnselected bool
	// DefaultIndicator is the Indicator label selected once metadata loads.
	DefaultIndicator string
	DefaultTab       models.Tab
}

const DefaultIndicator = "Indicator 1"

var (
	Explorer = Profile{
		Name:                      "explorer",
		OrientationControl:        true,
		Descriptions:              true,
		PlaceholdersNeedIndicator: true,
		DefaultIndicator:          DefaultIndicator,
		DefaultTab:                models.TabMap,
	}
	Compact = Profile{
		Name:             "compact",
		PromptUnselected: true,
		DefaultIndicator: DefaultIndicator,
		DefaultTab:       models.TabMap,
	}
)

// ProfileByName returns a built-in profile.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case "", Explorer.Name:
		return Explorer, nil
	case Compact.Name:
		return Compact, nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
}
