package dashboard

import "dashboard/internal/models"

// IndicatorOptions projects metadata onto selector options, in metadata order.
// It is a pure function and is recomputed on every render.
func IndicatorOptions(meta []models.Metadata, descriptions bool) []models.Option {
	opts := make([]models.Option, len(meta))
	for i, m := range meta {
		opts[i] = toOption(m, descriptions)
	}
	return opts
}

func toOption(m models.Metadata, descriptions bool) models.Option {
	opt := models.Option{Value: string(m.DataKey), Label: m.Indicator}
	if descriptions {
		opt.Description = m.IndicatorDescription
	}
	return opt
}

// findOption looks an option up by value.
func findOption(opts []models.Option, value string) (models.Option, bool) {
	for _, o := range opts {
		if o.Value == value {
			return o, true
		}
	}
	return models.Option{}, false
}

// defaultOption scans metadata for the entry labelled label.
func defaultOption(meta []models.Metadata, label string, descriptions bool) (models.Option, bool) {
	for _, m := range meta {
		if m.Indicator == label {
			return toOption(m, descriptions), true
		}
	}
	return models.Option{}, false
}
